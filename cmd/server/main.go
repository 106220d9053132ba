package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/config"
	"github.com/HammerMeetNail/livebingo/internal/database"
	"github.com/HammerMeetNail/livebingo/internal/handlers"
	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/middleware"
	"github.com/HammerMeetNail/livebingo/internal/services"
	"github.com/HammerMeetNail/livebingo/internal/store"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	// Initialize logger
	logger := logging.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.Debug {
		logger.SetLevel(logging.LevelDebug)
		logging.SetDefaultLevel(logging.LevelDebug)
		logger.Debug("Debug logging enabled", map[string]interface{}{
			"env": cfg.Server.Environment,
		})
	}

	logger.Info("Starting Live Bingo server...", map[string]interface{}{
		"store":     cfg.Game.StoreBackend,
		"join_mode": cfg.Game.JoinMode,
	})

	var (
		backend  store.Backend
		notifier store.Notifier
		redisDB  *database.RedisDB
		checks   = map[string]handlers.HealthChecker{}
	)

	switch cfg.Game.StoreBackend {
	case config.StoreBackendMemory:
		logger.Warn("Using the in-memory store; sessions are lost on restart")
		backend = store.NewMemoryBackend()
		notifier = store.NewMemoryNotifier()
	default:
		// Connect to PostgreSQL
		logger.Info("Connecting to PostgreSQL", map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
		})
		db, err := database.NewPostgresDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		logger.Info("Connected to PostgreSQL")

		// Run migrations
		logger.Info("Running database migrations...")
		migrator, err := database.NewMigrator(cfg.Database.DSN(), "migrations")
		if err != nil {
			return fmt.Errorf("creating migrator: %w", err)
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close()
			return fmt.Errorf("running migrations: %w", err)
		}
		_ = migrator.Close()
		logger.Info("Migrations completed")

		// Connect to Redis
		logger.Info("Connecting to Redis", map[string]interface{}{
			"addr": cfg.Redis.Addr(),
		})
		redisDB, err = database.NewRedisDB(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisDB.Close() }()
		logger.Info("Connected to Redis")

		backend = store.NewPostgresBackend(store.NewPoolAdapter(db.Pool))
		notifier = store.NewRedisNotifier(store.NewRedisAdapter(redisDB.Client))
		checks["postgres"] = db
		checks["redis"] = redisDB
	}

	gateway := store.NewGateway(backend, notifier, logger)

	// Initialize services
	secret, err := resolveIdentitySecret(cfg, logger)
	if err != nil {
		return err
	}
	identityService, err := services.NewIdentityService(secret, cfg.Identity.TokenTTL)
	if err != nil {
		return fmt.Errorf("initializing identity service: %w", err)
	}
	sender, err := newEmailSender(cfg, logger)
	if err != nil {
		return err
	}

	sessionService := services.NewSessionService(gateway, services.DefaultRand)
	participantService := services.NewParticipantService(gateway, services.DefaultRand, services.JoinMode(cfg.Game.JoinMode))
	feedService := services.NewFeedService(gateway)
	inviteService := services.NewInviteService(sessionService, sender, cfg.Server.BaseURL)

	oauthProviders, err := services.NewOIDCProviders(context.Background(), cfg.OAuth)
	if err != nil {
		return err
	}

	// Initialize middleware
	identityMiddleware := middleware.NewIdentity(identityService, cfg.Server.Secure)
	requestLogger := middleware.NewRequestLogger(logger)

	var evaler middleware.Evaler
	if redisDB != nil {
		evaler = redisDB.Client
	}
	createRateLimiter := middleware.NewRateLimiter(evaler, cfg.Game.CreateRateLimit, time.Hour, "ratelimit:create:", middleware.IdentityKey, true)
	inviteRateLimiter := middleware.NewRateLimiter(evaler, cfg.Game.InviteRateLimit, time.Hour, "ratelimit:invite:", middleware.IdentityKey, false)
	withIdentity := identityMiddleware.Middleware

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(checks)
	identityHandler := handlers.NewIdentityHandler(identityService)
	providerAuthHandler := handlers.NewProviderAuthHandler(identityService, identityMiddleware, oauthProviders, cfg.Server.Secure)
	sessionHandler := handlers.NewSessionHandler(sessionService, participantService, feedService)
	inviteHandler := handlers.NewInviteHandler(inviteService, participantService)
	shareHandler := handlers.NewShareHandler(sessionService, participantService, cfg.Server.BaseURL)
	liveHandler := handlers.NewLiveHandler(sessionService, participantService, feedService, logger)
	pageHandler, err := handlers.NewPageHandler(sessionService, participantService, feedService, cfg.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("loading page templates: %w", err)
	}

	// Set up router
	mux := http.NewServeMux()

	// Pages that join links and sign-in redirects land on
	mux.HandleFunc("GET /{$}", pageHandler.Home)
	mux.Handle("GET /play/{id}", withIdentity(http.HandlerFunc(pageHandler.Session)))

	// Health endpoints (no identity, no rate limit)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /ready", healthHandler.Ready)
	mux.HandleFunc("GET /live", healthHandler.Live)

	// Identity endpoints
	mux.Handle("GET /api/identity", withIdentity(http.HandlerFunc(identityHandler.Me)))
	mux.Handle("POST /api/identity/token", withIdentity(http.HandlerFunc(identityHandler.Token)))
	mux.HandleFunc("GET /api/auth/{provider}/start", providerAuthHandler.ProviderStart)
	mux.HandleFunc("GET /api/auth/{provider}/callback", providerAuthHandler.ProviderCallback)

	// Session endpoints
	mux.Handle("POST /api/sessions", withIdentity(createRateLimiter.Middleware(http.HandlerFunc(sessionHandler.Create))))
	mux.HandleFunc("GET /api/sessions/recent", sessionHandler.Recent)
	mux.HandleFunc("GET /api/sessions/{id}", sessionHandler.Get)
	mux.Handle("POST /api/sessions/{id}/join", withIdentity(http.HandlerFunc(sessionHandler.Join)))
	mux.HandleFunc("GET /api/sessions/{id}/participants", sessionHandler.Participants)
	mux.Handle("PUT /api/sessions/{id}/cells/{index}", withIdentity(http.HandlerFunc(sessionHandler.Toggle)))
	mux.Handle("PUT /api/sessions/{id}/name", withIdentity(http.HandlerFunc(sessionHandler.Rename)))
	mux.Handle("POST /api/sessions/{id}/invites", withIdentity(inviteRateLimiter.Middleware(http.HandlerFunc(inviteHandler.Create))))
	mux.HandleFunc("GET /api/sessions/{id}/qr", shareHandler.QR)

	// OpenGraph board preview
	mux.Handle("GET /og/sessions/{id}", withIdentity(http.HandlerFunc(shareHandler.Board)))

	// Live streams
	mux.Handle("GET /ws/sessions/{id}", withIdentity(http.HandlerFunc(liveHandler.Session)))
	mux.HandleFunc("GET /ws/sessions", liveHandler.Feed)

	var handler http.Handler = mux
	handler = requestLogger.Apply(handler)

	// Live connections hang off baseCtx so shutdown can end them.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")
		cancelBase()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}

// resolveIdentitySecret falls back to a per-process random secret where
// config validation allows an empty one.
func resolveIdentitySecret(cfg *config.Config, logger *logging.Logger) (string, error) {
	if cfg.Identity.Secret != "" {
		return cfg.Identity.Secret, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating identity secret: %w", err)
	}
	logger.Warn("IDENTITY_SECRET not set; identities will not survive a restart", map[string]interface{}{
		"env": cfg.Server.Environment,
	})
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newEmailSender(cfg *config.Config, logger *logging.Logger) (services.EmailSender, error) {
	switch cfg.Email.Provider {
	case "resend":
		sender, err := services.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.FromAddress, cfg.Email.FromName)
		if err != nil {
			return nil, fmt.Errorf("initializing resend sender: %w", err)
		}
		return sender, nil
	case "console", "":
		return services.NewConsoleSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.Email.Provider)
	}
}
