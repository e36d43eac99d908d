package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/signaldesk-be/internal/api"
	"github.com/isdelr/signaldesk-be/internal/auth"
	"github.com/isdelr/signaldesk-be/internal/config"
	"github.com/isdelr/signaldesk-be/internal/database"
	"github.com/isdelr/signaldesk-be/internal/logger"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/monitoring"
	"github.com/isdelr/signaldesk-be/internal/services"
	"github.com/isdelr/signaldesk-be/internal/storage"
	"github.com/isdelr/signaldesk-be/internal/store"
	"github.com/isdelr/signaldesk-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up database
	driver, err := database.ParseDriver(cfg.Database.Driver)
	if err != nil {
		log.Fatal().Err(err).Msg("Unsupported database driver")
	}
	db, err := database.New(ctx, driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, driver); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}
	st := store.New(db, driver)

	// Optional chart storage
	var charts services.ChartStorage
	if cfg.Storage.Bucket != "" {
		chartStore, err := storage.NewChartStore(ctx, storage.Config{
			Endpoint:   cfg.Storage.Endpoint,
			Region:     cfg.Storage.Region,
			Bucket:     cfg.Storage.Bucket,
			AccessKey:  cfg.Storage.AccessKey,
			SecretKey:  cfg.Storage.SecretKey,
			PathStyle:  cfg.Storage.PathStyle,
			PresignTTL: cfg.Storage.PresignTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize chart storage")
		}
		charts = chartStore
	} else {
		log.Warn().Msg("No S3 bucket configured; chart uploads are disabled")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)
	notifier := websocket.NewNotifier(hub)

	// Set up services
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	log.Info().Dur("token_ttl", tokens.TTL()).Int("bcrypt_cost", hasher.Cost()).Msg("Authentication configured")
	userService := services.NewUserService(st.Users(), hasher, tokens)
	eventService := services.NewEventService(st.Events())
	signalService := services.NewSignalService(st.Signals(), eventService, notifier, charts)

	if err := bootstrapUsers(ctx, userService, cfg.Bootstrap); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap users")
	}

	// Set up and run the background scheduler
	scheduler, err := monitoring.NewScheduler(eventService, st.Signals(), notifier, monitoring.Options{
		PruneSpec:      cfg.Jobs.PruneSpec,
		EventRetention: cfg.Jobs.EventRetention,
		DigestSpec:     cfg.Jobs.DigestSpec,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure scheduler")
	}
	scheduler.Start()

	// Set up router
	router := api.NewRouter(api.Dependencies{
		Gate:        auth.NewGate(tokens, st.Users()),
		Users:       userService,
		Signals:     signalService,
		Events:      eventService,
		Hub:         hub,
		Store:       st,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("driver", string(driver)).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	case err := <-serveErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	scheduler.Stop(shutdownCtx)
	stopHub()

	log.Info().Msg("Server exiting")
}

// bootstrapUsers creates the configured admin and callmaker accounts when
// they do not exist yet.
func bootstrapUsers(ctx context.Context, users *services.UserService, accounts []config.BootstrapUser) error {
	for _, a := range accounts {
		role, _ := models.ParseRole(a.Role)
		user, created, err := users.EnsureUser(ctx, a.Username, a.Password, a.DisplayName, role)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", a.Username, err)
		}
		if created {
			log.Info().Str("user_id", user.ID).Str("username", user.Username).Str("role", string(role)).Msg("Bootstrapped user")
		}
	}
	return nil
}
