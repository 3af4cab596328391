package quoter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderRequest describes one standing offer the quoter wants on the book
type OrderRequest struct {
	Asset         common.Address
	Amount        *big.Int
	Desired       common.Address
	DesiredAmount *big.Int
}

// PriceFetcher defines the interface for fetching current market prices
type PriceFetcher interface {
	// FetchPrice returns the current market price for the configured symbol
	FetchPrice(ctx context.Context) (float64, error)
	// Close releases any resources held by the price fetcher
	Close() error
}

// OrderPlacer defines the interface for placing and canceling offers on a book
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req *OrderRequest) (uint64, error)
	CancelOrder(ctx context.Context, nonce uint64) error
	Close() error
}

// QuotingStrategy defines the interface for quoting strategies
type QuotingStrategy interface {
	// CalculateOrders calculates the offers to be placed based on the current price
	CalculateOrders(ctx context.Context, currentPrice float64) ([]*OrderRequest, error)
}
