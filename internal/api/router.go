package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/signaldesk-be/internal/api/handlers"
	"github.com/isdelr/signaldesk-be/internal/auth"
	"github.com/isdelr/signaldesk-be/internal/services"
	"github.com/isdelr/signaldesk-be/internal/websocket"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Gate        *auth.Gate
	Users       services.UserServiceProvider
	Signals     services.SignalServiceProvider
	Events      services.EventServiceProvider
	Hub         *websocket.Hub
	Store       handlers.Pinger
	CORSOrigins []string
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger())
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(deps.Users)
	signalHandler := handlers.NewSignalHandler(deps.Signals)
	eventHandler := handlers.NewEventHandler(deps.Events)
	var clients handlers.ClientCounter
	if deps.Hub != nil {
		clients = deps.Hub
	}
	healthHandler := handlers.NewHealthHandler(deps.Store, clients)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Gate, deps.CORSOrigins)

	r.Get("/healthz", healthHandler.Check)

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", healthHandler.Check)
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)

		// WebSocket connection endpoint; authenticates itself so browsers
		// can pass the token as a query parameter.
		r.Get("/ws", wsHandler.Serve)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Gate.Middleware)

			r.Get("/me", userHandler.GetMe)
			r.Get("/events", eventHandler.GetRecent)

			r.Route("/signals", func(r chi.Router) {
				r.Get("/", signalHandler.List)
				r.Post("/", signalHandler.Create)
				r.Get("/approved", signalHandler.ListApproved)
				r.Get("/mine", signalHandler.ListMine)
				r.Get("/pending/count", signalHandler.CountPending)
				r.Post("/charts", signalHandler.ChartUpload)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", signalHandler.Get)
					r.Put("/", signalHandler.Update)
					r.Delete("/", signalHandler.Delete)
					r.Patch("/status", signalHandler.UpdateStatus)
					r.Get("/chart", signalHandler.Chart)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"route not found"}`))
	})

	return r
}
