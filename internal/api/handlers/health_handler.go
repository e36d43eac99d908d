package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Pinger checks a backend's reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter reports the number of connected live feed clients.
type ClientCounter interface {
	ClientCount(ctx context.Context) int
}

// HealthHandler reports liveness of the service and its store.
type HealthHandler struct {
	store   Pinger
	clients ClientCounter
}

// NewHealthHandler creates a new HealthHandler. clients may be nil.
func NewHealthHandler(store Pinger, clients ClientCounter) *HealthHandler {
	return &HealthHandler{store: store, clients: clients}
}

// Check answers 200 when the store is reachable and 503 otherwise.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	resp := map[string]interface{}{"status": "ok"}
	if h.clients != nil {
		resp["websocket_clients"] = h.clients.ClientCount(ctx)
	}
	respondJSON(w, http.StatusOK, resp)
}
