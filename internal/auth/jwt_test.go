package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-testing")

func TestIssueAndValidateToken(t *testing.T) {
	token, exp, err := IssueToken(testSecret, "whatsapp-transport", []Role{RoleTransport}, time.Hour, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, exp.After(time.Now()))

	claims, err := ValidateToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "whatsapp-transport", claims.Subject)
	assert.Equal(t, []string{"transport"}, claims.Roles)
	assert.True(t, claims.HasRole(RoleTransport))
	assert.False(t, claims.HasRole(RoleViewer))
}

func TestValidateToken_Rejects(t *testing.T) {
	valid, _, err := IssueToken(testSecret, "ops", []Role{RoleViewer}, time.Hour, time.Now())
	require.NoError(t, err)

	expired, _, err := IssueToken(testSecret, "ops", []Role{RoleViewer}, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Roles: []string{"admin"}}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noRoles, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret []byte
		want   error
	}{
		{name: "wrong secret", token: valid, secret: []byte("other"), want: ErrInvalidToken},
		{name: "expired", token: expired, secret: testSecret, want: ErrInvalidToken},
		{name: "unsigned", token: noneAlg, secret: testSecret, want: ErrInvalidToken},
		{name: "garbage", token: "not-a-token", secret: testSecret, want: ErrInvalidToken},
		{name: "no roles", token: noRoles, secret: testSecret, want: ErrMissingRoles},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateToken(tt.token, tt.secret)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIssueToken_Validation(t *testing.T) {
	_, _, err := IssueToken(nil, "ops", []Role{RoleAdmin}, time.Hour, time.Now())
	assert.Error(t, err)

	_, _, err = IssueToken(testSecret, "ops", []Role{"root"}, time.Hour, time.Now())
	assert.Error(t, err)

	_, _, err = IssueToken(testSecret, "ops", nil, time.Hour, time.Now())
	assert.ErrorIs(t, err, ErrMissingRoles)

	_, exp, err := IssueToken(testSecret, "ops", []Role{RoleAdmin}, 0, time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), exp, time.Minute)
}

func TestRole_HasPermission(t *testing.T) {
	assert.True(t, RoleAdmin.HasPermission(RoleViewer))
	assert.True(t, RoleAdmin.HasPermission(RoleTransport))
	assert.True(t, RoleViewer.HasPermission(RoleViewer))
	assert.False(t, RoleViewer.HasPermission(RoleAdmin))
	assert.False(t, RoleTransport.HasPermission(RoleViewer))
	assert.False(t, Role("root").IsValid())
}
