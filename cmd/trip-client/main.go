package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/compilation"
	"trip-planner/internal/config"
	"trip-planner/internal/domain"
	"trip-planner/internal/events"
	"trip-planner/internal/gateway"
	"trip-planner/internal/handler"
	"trip-planner/internal/mapview"
	"trip-planner/internal/messaging"
	"trip-planner/internal/middleware"
	"trip-planner/internal/observability"
	"trip-planner/internal/persona"
	"trip-planner/internal/session"
	"trip-planner/internal/storage"
	"trip-planner/internal/token"
	"trip-planner/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting trip client",
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, db, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to open client storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	tokens := token.NewStore(kv)
	client := apiclient.New(cfg.APIBaseURL, tokens, apiclient.WithTimeout(cfg.RequestTimeout))
	bus := events.NewBus()

	sess := session.New(gateway.NewAuthGateway(client), tokens, kv, bus)
	client.OnUnauthorized(sess.HandleUnauthorized)
	personas := persona.New(gateway.NewProfilesGateway(client), kv, bus)
	compilations := compilation.New(gateway.NewCompilationsGateway(client), bus, cfg.DefaultCompilationName)
	attractions := gateway.NewAttractionsGateway(client)

	hub := websocket.NewHub()
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	// Events reach the hub before the components react to them, either
	// directly or through the broker when one is configured.
	var broker handler.BrokerStatus
	if cfg.RabbitMQURL != "" {
		rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		broker = rmq

		if err := messaging.NewConsumer(rmq, hub.OnEvent).Start(ctx); err != nil {
			slog.Error("failed to start event consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		bus.Subscribe(rmq.Handle)
		slog.Info("event fan-out enabled", slog.String("exchange", messaging.EventsExchange))
	} else {
		bus.Subscribe(hub.OnEvent)
	}
	bus.Subscribe(personas.OnSessionEvent)
	bus.Subscribe(compilations.OnPersonaEvent)

	bootCtx, bootCancel := context.WithTimeout(ctx, 2*cfg.RequestTimeout)
	sess.Bootstrap(bootCtx)
	bootCancel()

	authLimiter := middleware.NewRateLimiter(5, 10)
	defer authLimiter.Stop()
	apiLimiter := middleware.NewRateLimiter(20, 50)
	defer apiLimiter.Stop()

	origins := middleware.ParseOrigins(cfg.AllowedOrigins)
	api := &handler.API{
		Session:        handler.NewSessionHandler(sess),
		Personas:       handler.NewPersonaHandler(personas),
		Compilations:   handler.NewCompilationHandler(compilations, attractions),
		Attractions:    handler.NewAttractionHandler(attractions, personas, compilations),
		Map:            handler.NewMapHandler(compilations, mapview.Options{}),
		WebSocket:      handler.NewWebSocketHandler(hub, origins),
		RequireSession: middleware.RequireSession(sess),
		AuthLimit:      authLimiter.Middleware(),
		APILimit:       apiLimiter.Middleware(),
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(origins))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, broker, client))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", api.Routes)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("trip client listening", slog.String("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	slog.Info("server stopped gracefully")
}

// openStorage returns the PostgreSQL store when DATABASE_URL is set and the
// in-memory store otherwise. The returned db is nil for the memory store.
func openStorage(ctx context.Context, cfg *config.Config) (domain.KeyValueStore, *sql.DB, error) {
	if !cfg.UsesPersistentStorage() {
		slog.Info("client storage kept in memory")
		return storage.NewMemoryStore(), nil, nil
	}

	db, err := config.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	store, err := storage.NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	slog.Info("client storage backed by postgresql")
	return store, db, nil
}
