package httpapi

import (
	"errors"
	"net/http"

	"ai_gateway/internal/billing"
	"ai_gateway/internal/business"
	"ai_gateway/internal/providers"
	"ai_gateway/internal/utils"
)

// UnavailableMessage is the only failure text a customer-facing caller sees.
const UnavailableMessage = "The assistant is unavailable right now."

// Error codes returned with UnavailableMessage
const (
	CodeDeviceNotFound      = "device_not_found"
	CodeInvalidContext      = "invalid_business_context"
	CodeCostLimitExceeded   = "cost_limit_exceeded"
	CodeLedgerUnavailable   = "ledger_unavailable"
	CodeProviderNotFound    = "provider_not_configured"
	CodeCredentialsMissing  = "provider_credentials_missing"
	CodeProviderUnreachable = "provider_unreachable"
	CodeProviderRejected    = "provider_error"
	CodeInternal            = "internal_error"
	CodeInvalidRequest      = "invalid_request"
	CodeNotFound            = "not_found"
)

// classify maps a gateway error to an HTTP status and error code
func classify(err error) (int, string) {
	var (
		validationErr *business.ValidationError
		limitErr      *billing.CostLimitExceeded
		configErr     *providers.ConfigurationError
		credentialErr *providers.CredentialError
		transportErr  *providers.TransportError
		upstreamErr   *providers.UpstreamError
	)

	switch {
	case errors.Is(err, business.ErrContextNotFound):
		return http.StatusNotFound, CodeDeviceNotFound
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, CodeInvalidContext
	case errors.As(err, &limitErr):
		return http.StatusTooManyRequests, CodeCostLimitExceeded
	case errors.Is(err, billing.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, CodeLedgerUnavailable
	case errors.As(err, &configErr):
		return http.StatusServiceUnavailable, CodeProviderNotFound
	case errors.As(err, &credentialErr):
		return http.StatusServiceUnavailable, CodeCredentialsMissing
	case errors.As(err, &transportErr):
		return http.StatusGatewayTimeout, CodeProviderUnreachable
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway, CodeProviderRejected
	}
	return http.StatusInternalServerError, CodeInternal
}

// respondWithGatewayError writes the generic notice; the detail stays in the log.
func (d *Dependencies) respondWithGatewayError(w http.ResponseWriter, deviceID string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		d.logger.Error("Reply failed", "device", deviceID, "code", code, "error", err)
	} else {
		d.logger.Info("Reply refused", "device", deviceID, "code", code, "error", err)
	}
	utils.RespondWithErrorCode(w, status, code, UnavailableMessage)
}
