package quoter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Quoter keeps a ladder of standing offers on one book, repriced from an
// external reference on every tick. Each cycle cancels the previous ladder
// before placing the new one.
type Quoter struct {
	cfg          *Config
	logger       *slog.Logger
	orderPlacer  OrderPlacer
	priceFetcher PriceFetcher
	strategy     QuotingStrategy
	activeOrders sync.Map // map[uint64]bool - nonces of live offers
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewQuoter creates a new quoter service
func NewQuoter(cfg *Config, logger *slog.Logger, orderPlacer OrderPlacer, priceFetcher PriceFetcher, strategy QuotingStrategy) (*Quoter, error) {
	if orderPlacer == nil || priceFetcher == nil || strategy == nil {
		return nil, fmt.Errorf("quoter requires an order placer, price fetcher and strategy")
	}

	return &Quoter{
		cfg:          cfg,
		logger:       logger.With("component", "Quoter"),
		orderPlacer:  orderPlacer,
		priceFetcher: priceFetcher,
		strategy:     strategy,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start begins the quoting loop
func (q *Quoter) Start(ctx context.Context) error {
	q.logger.Info("Starting quoter service",
		"domain", q.cfg.BookDomain,
		"symbol", q.cfg.ExternalSymbol,
		"update_interval", q.cfg.UpdateInterval)

	q.wg.Add(1)
	go q.run(ctx)

	return nil
}

// Stop gracefully shuts down the quoter and pulls its ladder from the book
func (q *Quoter) Stop(ctx context.Context) error {
	q.logger.Info("Stopping quoter service")

	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Quoter loop stopped")
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for quoter to stop: %w", ctx.Err())
	}

	if err := q.cancelAllOrders(ctx); err != nil {
		q.logger.Error("Failed to cancel offers during shutdown", "error", err)
		return fmt.Errorf("failed to cancel offers during shutdown: %w", err)
	}

	return nil
}

// run is the main quoting loop
func (q *Quoter) run(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Context cancelled, stopping quoting loop")
			return
		case <-q.stopCh:
			q.logger.Info("Stop signal received, stopping quoting loop")
			return
		case <-ticker.C:
			if err := q.updateOrders(ctx); err != nil {
				q.logger.Error("Failed to update offers", "error", err)
				// Continue running despite errors
			}
		}
	}
}

// updateOrders performs a single repricing cycle
func (q *Quoter) updateOrders(ctx context.Context) error {
	price, err := q.priceFetcher.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	orders, err := q.strategy.CalculateOrders(ctx, price)
	if err != nil {
		return fmt.Errorf("failed to calculate offers: %w", err)
	}

	if err := q.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel previous ladder: %w", err)
	}

	for _, order := range orders {
		nonce, err := q.orderPlacer.PlaceOrder(ctx, order)
		if err != nil {
			q.logger.Error("Failed to place offer",
				"asset", order.Asset.Hex(),
				"amount", order.Amount.String(),
				"error", err)
			continue
		}

		q.activeOrders.Store(nonce, true)
	}

	return nil
}

// cancelAllOrders cancels every tracked live offer
func (q *Quoter) cancelAllOrders(ctx context.Context) error {
	var lastErr error
	q.activeOrders.Range(func(key, _ interface{}) bool {
		nonce := key.(uint64)

		if err := q.orderPlacer.CancelOrder(ctx, nonce); err != nil {
			q.logger.Error("Failed to cancel offer", "nonce", nonce, "error", err)
			lastErr = err
			// Keep canceling the rest of the ladder
			return true
		}

		q.activeOrders.Delete(nonce)
		return true
	})

	return lastErr
}
