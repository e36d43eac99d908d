package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/services"
	"github.com/rs/zerolog/log"
)

// UserHandler handles HTTP requests for registration, login and profiles.
type UserHandler struct {
	service services.UserServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider) *UserHandler {
	return &UserHandler{service: service}
}

// AuthPayload defines the structure for login requests.
type AuthPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullname"`
}

type registerResponse struct {
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

type loginResponse struct {
	Message   string      `json:"message"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterInput{
		Username:    payload.Username,
		Password:    payload.Password,
		DisplayName: payload.FullName,
	})
	if err != nil {
		log.Warn().Err(err).Str("username", strings.TrimSpace(payload.Username)).Msg("Failed to register user")
		respondError(w, r, err)
		return
	}

	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("User registered")
	respondJSON(w, http.StatusOK, registerResponse{Message: "User registered successfully", User: user})
}

// Login handles user authentication and token issuance.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.service.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("username", payload.Username).Msg("Failed authentication attempt")
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Message:   "Login successful",
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
	})
}

// GetMe returns the profile of the authenticated user.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.service.GetUserByID(r.Context(), id.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
