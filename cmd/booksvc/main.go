package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/z80dev/puente/config"
	"github.com/z80dev/puente/pkg/db/queue"
	"github.com/z80dev/puente/pkg/messaging/kafka"
	"github.com/z80dev/puente/pkg/otel"
	"github.com/z80dev/puente/pkg/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	// Configure global logger
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Server.LogFormat == "pretty" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	// Create default context with logger
	ctx := logger.WithContext(context.Background())

	// Create a new book manager with Kafka-backed events
	events, err := queue.NewQueueEventSender()
	if err != nil {
		logger.Warn().Err(err).Msg("Kafka unavailable, book events will not be published")
	}

	var manager *server.BookManager
	if events != nil {
		manager = server.NewBookManager(events)
		defer events.Close()
	} else {
		manager = server.NewBookManager(nil)
	}
	defer manager.Close()

	// Cross-process topologies relay over Kafka instead of the in-process mesh
	if cfg.Relay.Transport == "kafka" {
		if err := manager.UseKafkaRelay([]string{cfg.Kafka.BrokerAddr}, cfg.Kafka.GroupID); err != nil {
			logger.Fatal().Err(err).Msg("Failed to select Kafka relay transport")
		}
		logger.Info().Str("broker", cfg.Kafka.BrokerAddr).Msg("Relaying over Kafka")
	}

	// Create the configured book
	address := common.HexToAddress(cfg.Book.Address)
	owner := common.HexToAddress(cfg.Book.Owner)

	switch cfg.Book.Backend {
	case "redis":
		_, err = manager.CreateRedisBook(ctx, cfg.Book.Name, cfg.Book.Domain, address, owner, map[string]string{
			"addr":     cfg.Redis.Addr,
			"password": cfg.Redis.Password,
			"db":       fmt.Sprintf("%d", cfg.Redis.DB),
			"prefix":   cfg.Book.Name,
		})
	default:
		_, err = manager.CreateMemoryBook(ctx, cfg.Book.Name, cfg.Book.Domain, address, owner)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create book")
	}

	logger.Info().
		Str("name", cfg.Book.Name).
		Uint32("domain", cfg.Book.Domain).
		Str("backend", cfg.Book.Backend).
		Msg("Created book")

	// Initialize Kafka consumer (optional)
	// The consumer is for developer purposes: it pretty-prints the events
	// landing on the queue.
	kafkaConsumer, err := kafka.SetupConsumer(ctx, logger)
	if err == nil && kafkaConsumer != nil {
		defer kafkaConsumer.Close()
	}

	// Initialize OpenTelemetry
	cleanup, err := otel.Init(otel.Config{
		ServiceName:      "puente",
		ServiceVersion:   "1.0.0",
		Endpoint:         cfg.Otel.Endpoint,
		CollectorEnabled: cfg.Otel.Enabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer cleanup()

	// Setup HTTP server
	httpServer := setupHTTPServer(ctx, cfg, manager)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("Server shutdown complete")
}

// setupHTTPServer initializes and starts the JSON API server
func setupHTTPServer(ctx context.Context, cfg *config.Config, manager *server.BookManager) *http.Server {
	logger := zerolog.Ctx(ctx)

	api := server.NewHTTPServer(manager)
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	return httpServer
}
