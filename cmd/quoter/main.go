package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/z80dev/puente/pkg/core"
	"github.com/z80dev/puente/pkg/quoter"
)

func main() {
	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load configuration
	cfg, err := quoter.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Resolve the maker identity, generating a throwaway one when unset
	maker := core.MustRandomAddress()
	if hex := os.Getenv("MAKER_ADDRESS"); hex != "" {
		maker = common.HexToAddress(hex)
	}
	logger.Info("Quoting as maker", "address", maker.Hex())

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the order placer (puente API client)
	orderPlacer, err := quoter.NewHTTPOrderPlacer(cfg, maker, logger)
	if err != nil {
		logger.Error("Failed to create order placer", "error", err)
		os.Exit(1)
	}
	defer orderPlacer.Close()

	// Initialize the price fetcher
	priceFetcher, err := quoter.NewPriceFetcher(cfg, logger)
	if err != nil {
		logger.Error("Failed to create price fetcher", "error", err)
		os.Exit(1)
	}

	// Initialize the quoting strategy
	strategy := quoter.NewLayeredSymmetricQuoting(cfg, logger)

	// Create and start the quoter service
	q, err := quoter.NewQuoter(cfg, logger, orderPlacer, priceFetcher, strategy)
	if err != nil {
		logger.Error("Failed to create quoter", "error", err)
		os.Exit(1)
	}

	if err := q.Start(ctx); err != nil {
		logger.Error("Failed to start quoter", "error", err)
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	// Create a context with timeout for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop the quoter and pull its standing offers
	if err := q.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Quoter service stopped successfully")
}
