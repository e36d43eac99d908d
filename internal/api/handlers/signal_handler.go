package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/services"
)

// SignalHandler handles HTTP requests for trading signals.
type SignalHandler struct {
	service services.SignalServiceProvider
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(service services.SignalServiceProvider) *SignalHandler {
	return &SignalHandler{service: service}
}

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '"' {
		s, err := strconv.Unquote(string(raw))
		if err != nil {
			return errors.New("price must be a number")
		}
		raw = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return errors.New("price must be a number")
	}
	*n = number(v)
	return nil
}

// SignalPayload defines the body of create and update requests. Omitted
// fields are left unchanged on update.
type SignalPayload struct {
	CoinName    *string `json:"coin_name"`
	EntryPrice  *number `json:"entry_price"`
	TargetPrice *number `json:"target_price"`
	StopLoss    *number `json:"stop_loss"`
	Note        *string `json:"note"`
	ChartImage  *string `json:"chart_image"`
}

func (p SignalPayload) fields() models.SignalFields {
	f := models.SignalFields{
		Instrument: p.CoinName,
		Note:       p.Note,
		ChartImage: p.ChartImage,
	}
	f.EntryPrice = p.EntryPrice.float()
	f.TargetPrice = p.TargetPrice.float()
	f.StopLoss = p.StopLoss.float()
	return f
}

func (n *number) float() *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

// StatusPayload defines the body of status transition requests.
type StatusPayload struct {
	Status string `json:"status"`
}

// ChartPayload defines the body of chart upload requests.
type ChartPayload struct {
	ContentType string `json:"contentType"`
}

type signalResponse struct {
	Message string        `json:"message"`
	Signal  models.Signal `json:"signal"`
}

type countResponse struct {
	Count int `json:"count"`
}

// List returns the signals visible to the caller, optionally filtered by
// ?status= for admins.
func (h *SignalHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	signals, err := h.service.ListVisible(r.Context(), id, r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, signals)
}

// ListApproved returns all approved signals.
func (h *SignalHandler) ListApproved(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	signals, err := h.service.ListApproved(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, signals)
}

// ListMine returns the caller's own signals.
func (h *SignalHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	signals, err := h.service.ListOwn(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, signals)
}

// CountPending returns the number of signals awaiting review.
func (h *SignalHandler) CountPending(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	count, err := h.service.CountPending(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, countResponse{Count: count})
}

// Get returns a single signal.
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	signal, err := h.service.GetSignal(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, signal)
}

// Create submits a new signal.
func (h *SignalHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var payload SignalPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	signal, err := h.service.CreateSignal(r.Context(), id, payload.fields())
	if err != nil {
		respondError(w, r, err)
		return
	}
	message := "Signal submitted for approval"
	if signal.Status == models.StatusApproved {
		message = "Signal published"
	}
	respondJSON(w, http.StatusCreated, signalResponse{Message: message, Signal: signal})
}

// UpdateStatus approves or rejects a signal.
func (h *SignalHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var payload StatusPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	signal, err := h.service.TransitionStatus(r.Context(), id, chi.URLParam(r, "id"), payload.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, signalResponse{Message: "Signal status updated to " + string(signal.Status), Signal: signal})
}

// Update edits the market fields of a signal.
func (h *SignalHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var payload SignalPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	signal, err := h.service.UpdateSignal(r.Context(), id, chi.URLParam(r, "id"), payload.fields())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, signalResponse{Message: "Signal updated successfully", Signal: signal})
}

// Delete removes a signal.
func (h *SignalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.service.DeleteSignal(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Signal deleted successfully")
}

// ChartUpload presigns an upload slot for a chart image.
func (h *SignalHandler) ChartUpload(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var payload ChartPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	upload, err := h.service.ChartUploadURL(r.Context(), id, payload.ContentType)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, upload)
}

// Chart redirects to the signal's chart image.
func (h *SignalHandler) Chart(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	url, err := h.service.ChartURL(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}
