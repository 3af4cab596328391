package quoter

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
)

// LayeredSymmetricQuoting places symmetric offers on both sides of an
// external reference price. Each level contributes one ask (sell base,
// want quote) and one bid (sell quote, want base).
type LayeredSymmetricQuoting struct {
	cfg    *Config
	logger *slog.Logger
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger *slog.Logger) QuotingStrategy {
	return &LayeredSymmetricQuoting{
		cfg:    cfg,
		logger: logger.With("component", "LayeredSymmetricQuoting"),
	}
}

// CalculateOrders implements QuotingStrategy
func (s *LayeredSymmetricQuoting) CalculateOrders(ctx context.Context, currentPrice float64) ([]*OrderRequest, error) {
	if currentPrice <= 0 {
		return nil, fmt.Errorf("invalid reference price %f", currentPrice)
	}

	baseHalfSpread := currentPrice * (s.cfg.BaseSpreadPercent / 2 / 100)
	priceStep := currentPrice * (s.cfg.PriceStepPercent / 100)

	// One ask and one bid per level
	orders := make([]*OrderRequest, 0, s.cfg.NumLevels*2)

	for i := 1; i <= s.cfg.NumLevels; i++ {
		bidPrice := currentPrice - baseHalfSpread - float64(i-1)*priceStep
		askPrice := currentPrice + baseHalfSpread + float64(i-1)*priceStep
		if bidPrice <= 0 {
			return nil, fmt.Errorf("level %d bid price %f is not positive", i, bidPrice)
		}

		// Ask: offer OrderSize base units, want OrderSize*askPrice quote units
		ask := &OrderRequest{
			Asset:         s.cfg.BaseAsset,
			Amount:        new(big.Int).Set(s.cfg.OrderSize),
			Desired:       s.cfg.QuoteAsset,
			DesiredAmount: scaleAmount(s.cfg.OrderSize, askPrice),
		}
		orders = append(orders, ask)

		// Bid: offer OrderSize*bidPrice quote units, want OrderSize base units
		bid := &OrderRequest{
			Asset:         s.cfg.QuoteAsset,
			Amount:        scaleAmount(s.cfg.OrderSize, bidPrice),
			Desired:       s.cfg.BaseAsset,
			DesiredAmount: new(big.Int).Set(s.cfg.OrderSize),
		}
		orders = append(orders, bid)

		s.logger.Debug("Calculated offer pair",
			"level", i,
			"bid_price", bidPrice,
			"ask_price", askPrice,
			"size", s.cfg.OrderSize.String())
	}

	return orders, nil
}

// scaleAmount multiplies a base-unit quantity by a float price, rounding
// to the nearest whole unit and never returning less than one.
func scaleAmount(size *big.Int, price float64) *big.Int {
	product := new(big.Float).Mul(new(big.Float).SetInt(size), big.NewFloat(price))
	product.Add(product, big.NewFloat(0.5))

	out, _ := product.Int(nil)
	if out.Sign() <= 0 {
		return big.NewInt(1)
	}
	return out
}
