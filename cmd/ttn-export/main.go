package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/loraworks/ttn-export/internal/config"
	"github.com/loraworks/ttn-export/internal/dlq"
	"github.com/loraworks/ttn-export/internal/handlers"
	"github.com/loraworks/ttn-export/internal/history"
	"github.com/loraworks/ttn-export/internal/logging"
	"github.com/loraworks/ttn-export/internal/middleware"
	"github.com/loraworks/ttn-export/internal/ratelimit"
	"github.com/loraworks/ttn-export/internal/server"
	"github.com/loraworks/ttn-export/internal/service"
	"github.com/loraworks/ttn-export/internal/ttn"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("ttn-export"))
	logging.SetDefault(logger)

	slog.Info("Starting ttn-export service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			log.Printf("WARNING: Failed to initialize Redis rate limiter: %v", err)
			log.Println("Continuing without rate limiting")
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			log.Printf("Rate limiting enabled: %d requests per %s", cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
		log.Println("Rate limiting disabled")
	}
	defer rateLimiter.Close()

	// Initialize Dead Letter Queue for unparseable lines
	var dlqWriter dlq.Writer = dlq.NoOpWriter{}
	if cfg.DLQ.Enabled {
		jsWriter, err := dlq.NewJetStreamWriter(context.Background(), cfg.DLQ.NatsURL)
		if err != nil {
			log.Fatalf("Failed to initialize JetStream DLQ: %v", err)
		}
		dlqWriter = jsWriter
		log.Printf("Dead Letter Queue enabled (nats: %s)", cfg.DLQ.NatsURL)
	} else {
		log.Println("Dead Letter Queue disabled")
	}
	defer dlqWriter.Close()

	// Initialize run history
	var recorder history.Recorder = history.NoOpRecorder{}
	if cfg.History.Enabled {
		m, err := migrate.New("file://"+cfg.History.MigrationsPath, cfg.History.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize migrations: %v", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations completed")

		repo, err := history.NewPostgresRepository(context.Background(), cfg.History.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		recorder = repo
		defer repo.Close()
		log.Println("Run history enabled")
	} else {
		log.Println("Run history disabled")
	}

	// Initialize TTN storage client
	var fetcher handlers.Fetcher
	if cfg.TTN.APIKey != "" {
		fetcher = ttn.New(cfg.TTN.BaseURL, cfg.TTN.APIKey, cfg.TTN.FetchTimeout)
		log.Printf("Storage fetch enabled (cluster: %s)", cfg.TTN.BaseURL)
	} else {
		log.Println("Storage fetch disabled - no TTN API key configured")
	}

	// Initialize pipeline service and HTTP handlers
	exportService := service.NewExportService(dlqWriter, recorder, logger)
	handler := handlers.NewExportHandler(exportService, fetcher, rateLimiter, logger, cfg.Ingestion.MaxBatchBytes)
	router := server.NewRouter(handler)

	if cfg.Server.CORSEnabled {
		router = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		})(router)
	}

	// Create server with config values
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("ttn-export service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
