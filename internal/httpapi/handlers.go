package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"ai_gateway/internal/conversation"
	"ai_gateway/internal/models"
	"ai_gateway/internal/queue"
	"ai_gateway/internal/storage"
	"ai_gateway/internal/utils"
)

const (
	maxReplyBodyBytes      = 1 << 20
	defaultDeadLetterLimit = 100
)

// handleReply handles POST /v1/devices/{deviceID}/reply
func (d *Dependencies) handleReply(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")

	var msg conversation.InboundMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReplyBodyBytes)).Decode(&msg); err != nil {
		utils.RespondWithErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload")
		return
	}
	if msg.Sender == "" && msg.ChatID == "" {
		utils.RespondWithErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "sender or chat_id is required")
		return
	}

	reply, err := d.Gateway.Reply(r.Context(), deviceID, &msg)
	if err != nil {
		d.respondWithGatewayError(w, deviceID, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, reply)
}

// handleListAlerts handles GET /admin/devices/{deviceID}/alerts
func (d *Dependencies) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")

	alerts, err := d.Governor.OpenAlerts(r.Context(), deviceID)
	if err != nil {
		d.logger.Error("Failed to list alerts", "device", deviceID, "error", err)
		utils.RespondWithErrorCode(w, http.StatusInternalServerError, CodeInternal, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*models.CostAlert{}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": deviceID,
		"alerts":    alerts,
	})
}

// handleResolveAlert handles POST /admin/alerts/{alertID}/resolve
func (d *Dependencies) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("alertID"))
	if err != nil {
		utils.RespondWithErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid alert ID")
		return
	}

	if err := d.Governor.ResolveAlert(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			utils.RespondWithErrorCode(w, http.StatusNotFound, CodeNotFound, "Alert not found or already resolved")
			return
		}
		d.logger.Error("Failed to resolve alert", "alert", id, "error", err)
		utils.RespondWithErrorCode(w, http.StatusInternalServerError, CodeInternal, "Failed to resolve alert")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"id": id, "resolved": true})
}

// handleSpend handles GET /admin/devices/{deviceID}/spend
func (d *Dependencies) handleSpend(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")

	spend, err := d.Governor.Spend(r.Context(), deviceID)
	if err != nil {
		d.logger.Error("Failed to read spend", "device", deviceID, "error", err)
		utils.RespondWithErrorCode(w, http.StatusServiceUnavailable, CodeLedgerUnavailable, "Spend totals unavailable")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, spend)
}

// handleListProviders handles GET /admin/providers. Stored keys are never serialized.
func (d *Dependencies) handleListProviders(w http.ResponseWriter, r *http.Request) {
	list, err := d.Providers.Providers(r.Context())
	if err != nil {
		d.logger.Error("Failed to list providers", "error", err)
		utils.RespondWithErrorCode(w, http.StatusServiceUnavailable, CodeInternal, "Provider catalog unavailable")
		return
	}
	if list == nil {
		list = []*models.Provider{}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"providers": list})
}

// handleReloadProviders handles POST /admin/providers/reload
func (d *Dependencies) handleReloadProviders(w http.ResponseWriter, r *http.Request) {
	if err := d.Providers.Reload(r.Context()); err != nil {
		d.logger.Error("Provider reload failed", "error", err)
		utils.RespondWithErrorCode(w, http.StatusServiceUnavailable, CodeInternal, "Provider reload failed")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{"reloaded": true})
}

// handleInvalidateContext handles POST /admin/devices/{deviceID}/context/invalidate
func (d *Dependencies) handleInvalidateContext(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	d.Contexts.Invalidate(deviceID)
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"device_id": deviceID, "invalidated": true})
}

// handleListDeadLetters handles GET /admin/usage/dead-letters?limit=N
func (d *Dependencies) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			utils.RespondWithErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := d.UsageWorker.DeadLetterItems(r.Context(), limit)
	if err != nil {
		d.logger.Error("Failed to list dead letters", "error", err)
		utils.RespondWithErrorCode(w, http.StatusInternalServerError, CodeInternal, "Failed to list dead letters")
		return
	}
	queued, err := d.UsageWorker.QueueLength(r.Context())
	if err != nil {
		d.logger.Warn("Failed to read usage queue length", "error", err)
	}
	if items == nil {
		items = []queue.DeadLetterItem{}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"queued": queued,
		"items":  items,
	})
}

// handleRetryDeadLetter handles POST /admin/usage/dead-letters/{itemID}/retry
func (d *Dependencies) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("itemID")
	if err := d.UsageWorker.RetryDeadLetterItem(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrItemNotFound) {
			utils.RespondWithErrorCode(w, http.StatusNotFound, CodeNotFound, "Dead letter item not found")
			return
		}
		d.logger.Error("Failed to retry dead letter", "item", id, "error", err)
		utils.RespondWithErrorCode(w, http.StatusInternalServerError, CodeInternal, "Failed to retry dead letter")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"id": id, "requeued": true})
}
