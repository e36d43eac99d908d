package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/policy"
	"github.com/isdelr/signaldesk-be/internal/services"
)

// EventHandler handles HTTP requests for the audit trail.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent returns the most recent audit events. Admin only.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !policy.Authorize(id, policy.ViewAuditLog, policy.Resource{}) {
		respondError(w, r, fmt.Errorf("%w: not allowed to view the audit log", apperr.ErrForbidden))
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = services.DefaultEventLimit
	}

	events, err := h.service.GetRecentEvents(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}
