package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/pflag"

	"ticket-validation-api/internal/cache"
	"ticket-validation-api/internal/config"
	"ticket-validation-api/internal/database"
	"ticket-validation-api/internal/events"
	"ticket-validation-api/internal/features"
	"ticket-validation-api/internal/handler"
	"ticket-validation-api/internal/location"
	"ticket-validation-api/internal/logging"
	"ticket-validation-api/internal/middleware"
	"ticket-validation-api/internal/service"
	tlsconfig "ticket-validation-api/internal/tls"
	"ticket-validation-api/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configFile, port, dbPath string

	flagSet := pflag.NewFlagSet("ticket-validation-api", pflag.ContinueOnError)
	flagSet.StringVarP(&configFile, "config", "c", "", "configuration file (JSON or YAML)")
	flagSet.StringVar(&port, "port", "", "server port (overrides config)")
	flagSet.StringVar(&dbPath, "db", "", "database file path (overrides config)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Server.Port = port
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	tracer, err := tracing.InitTracing(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	receiptStore, err := newCache(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer receiptStore.Close()

	eventManager := events.NewManager(true)
	eventManager.Subscribe(events.EventValidationCompleted, func(ctx context.Context, e events.Event) error {
		r := e.Data.(events.ValidationCompletedData).Receipt
		logging.FromContext(ctx).Info("validation completed",
			"validation_id", r.ID,
			"card_id", r.CardID,
			"status", r.Outcome.Status,
			"location_id", r.LocationID,
		)
		return nil
	})
	eventManager.Subscribe(events.EventCardIssued, func(ctx context.Context, e events.Event) error {
		d := e.Data.(events.CardIssuedData)
		logging.FromContext(ctx).Info("card issued", "card_id", d.CardID, "card_type", d.CardType)
		return nil
	})
	defer eventManager.Shutdown()

	locations := location.NewRepository()
	if _, err := locations.Get(cfg.Terminal.LocationID); err != nil {
		return fmt.Errorf("terminal location %d: %w", cfg.Terminal.LocationID, err)
	}
	tz, err := cfg.Terminal.LoadLocation()
	if err != nil {
		return err
	}

	// Initialize service
	svc := service.NewService(db, locations,
		service.Terminal{
			LocationID:      cfg.Terminal.LocationID,
			DefaultAmount:   cfg.Terminal.DefaultAmount,
			MifareKeyNumber: cfg.Terminal.MifareKeyNumber,
			Timezone:        tz,
		},
		service.WithEvents(eventManager),
		service.WithFeatures(features.NewDefaultManager()),
		service.WithReceiptCache(cache.NewReceiptCache(receiptStore, cfg.Cache.TTLDuration())),
		service.WithTracer(tracer),
	)

	// Initialize handlers
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware(tracer))

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h.Routes(r)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Configure TLS if enabled
	if cfg.Server.EnableTLS {
		tlsCfg := tlsconfig.Config{CertFile: cfg.Server.CertFile, KeyFile: cfg.Server.KeyFile}
		server.TLSConfig, err = tlsconfig.LoadTLSConfig(tlsCfg)
		if err != nil {
			return fmt.Errorf("failed to load TLS configuration: %w", err)
		}
		if tlsCfg.SelfSigned() {
			logger.Warn("no certificate files provided, using a self-signed certificate for development")
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if server.TLSConfig != nil {
		ln = tls.NewListener(ln, server.TLSConfig)
	}

	logger.Info("starting server",
		"addr", addr,
		"tls", cfg.Server.EnableTLS,
		"database", cfg.Database.Path,
		"terminal_location", cfg.Terminal.LocationID,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ln)
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newCache picks Redis when an address is configured, the in-memory cache
// otherwise.
func newCache(cfg config.CacheConfig, logger *slog.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory receipt cache")
		return cache.NewInMemoryCache(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("using redis receipt cache", "addr", cfg.RedisAddr)
	return rc, nil
}
