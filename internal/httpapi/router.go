// Package httpapi exposes the gateway to the messaging transport and to operators.
package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"ai_gateway/internal/auth"
	"ai_gateway/internal/billing"
	"ai_gateway/internal/conversation"
	"ai_gateway/internal/gateway"
	"ai_gateway/internal/middleware"
	"ai_gateway/internal/models"
	"ai_gateway/internal/queue"
	"ai_gateway/internal/utils"
)

// Replier answers inbound messages; implemented by gateway.Gateway.
type Replier interface {
	Reply(ctx context.Context, deviceID string, msg *conversation.InboundMessage) (*gateway.Reply, error)
}

// SpendReporter exposes spend and alerts; implemented by billing.Governor.
type SpendReporter interface {
	OpenAlerts(ctx context.Context, deviceID string) ([]*models.CostAlert, error)
	ResolveAlert(ctx context.Context, id uuid.UUID) error
	Spend(ctx context.Context, deviceID string) (*billing.Spend, error)
}

// ProviderCatalog is the provider snapshot; implemented by providers.Registry.
type ProviderCatalog interface {
	Providers(ctx context.Context) ([]*models.Provider, error)
	Reload(ctx context.Context) error
}

// DeadLetters manages usage records that could not be written; implemented by storage.UsageQueueWorker.
type DeadLetters interface {
	QueueLength(ctx context.Context) (int, error)
	DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error)
	RetryDeadLetterItem(ctx context.Context, id string) error
}

// ContextCache drops cached business contexts; implemented by storage.CachedContextStore.
type ContextCache interface {
	Invalidate(deviceID string)
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies aggregates all services the HTTP layer needs.
// UsageWorker, Contexts and Database are optional.
type Dependencies struct {
	Gateway     Replier
	Governor    SpendReporter
	Providers   ProviderCatalog
	UsageWorker DeadLetters
	Contexts    ContextCache
	Database    HealthChecker
	JWTSecret   []byte

	logger *utils.Logger
}

// NewRouter registers every route and wraps them with request logging
func NewRouter(deps *Dependencies) http.Handler {
	deps.logger = utils.NewLogger("httpapi")

	transport := middleware.OperatorJWTMiddleware(deps.JWTSecret, auth.RoleTransport)
	viewer := middleware.OperatorJWTMiddleware(deps.JWTSecret, auth.RoleViewer)
	admin := middleware.OperatorJWTMiddleware(deps.JWTSecret, auth.RoleAdmin)

	mux := http.NewServeMux()

	// Health check endpoint - public
	mux.HandleFunc("GET /health", deps.handleHealth)

	mux.Handle("POST /v1/devices/{deviceID}/reply", transport(http.HandlerFunc(deps.handleReply)))

	mux.Handle("GET /admin/devices/{deviceID}/alerts", viewer(http.HandlerFunc(deps.handleListAlerts)))
	mux.Handle("GET /admin/devices/{deviceID}/spend", viewer(http.HandlerFunc(deps.handleSpend)))
	mux.Handle("POST /admin/alerts/{alertID}/resolve", admin(http.HandlerFunc(deps.handleResolveAlert)))

	mux.Handle("GET /admin/providers", viewer(http.HandlerFunc(deps.handleListProviders)))
	mux.Handle("POST /admin/providers/reload", admin(http.HandlerFunc(deps.handleReloadProviders)))

	if deps.Contexts != nil {
		mux.Handle("POST /admin/devices/{deviceID}/context/invalidate", admin(http.HandlerFunc(deps.handleInvalidateContext)))
	}
	if deps.UsageWorker != nil {
		mux.Handle("GET /admin/usage/dead-letters", viewer(http.HandlerFunc(deps.handleListDeadLetters)))
		mux.Handle("POST /admin/usage/dead-letters/{itemID}/retry", admin(http.HandlerFunc(deps.handleRetryDeadLetter)))
	}

	return middleware.RequestLogger(deps.logger)(mux)
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if d.Database != nil {
		if err := d.Database.Health(r.Context()); err != nil {
			d.logger.Error("Health check failed", "error", err)
			utils.RespondWithErrorCode(w, http.StatusServiceUnavailable, "unhealthy", "Database unavailable")
			return
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
