package auth

// Role grants access to a group of operator endpoints
type Role string

const (
	// RoleAdmin may call every endpoint, including resolving alerts
	RoleAdmin Role = "admin"

	// RoleViewer may read spend and alerts
	RoleViewer Role = "viewer"

	// RoleTransport is held by the messaging transport that asks for replies
	RoleTransport Role = "transport"
)

func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleViewer, RoleTransport:
		return true
	default:
		return false
	}
}

// HasPermission reports whether r satisfies required. Admin satisfies every role.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}
