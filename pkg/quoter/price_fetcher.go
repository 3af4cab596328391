package quoter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// binancePriceFetcher implements PriceFetcher using the Binance public API
type binancePriceFetcher struct {
	client  *http.Client
	cfg     *Config
	logger  *slog.Logger
	baseURL string
}

// binanceTickerResponse represents the response from Binance's ticker price endpoint
type binanceTickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// NewPriceFetcher creates a new PriceFetcher that uses the Binance API
func NewPriceFetcher(cfg *Config, logger *slog.Logger) (PriceFetcher, error) {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: true,
		},
	}

	return &binancePriceFetcher{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "binancePriceFetcher"),
		baseURL: cfg.PriceSourceURL,
	}, nil
}

// FetchPrice fetches the current price from Binance's API
func (f *binancePriceFetcher) FetchPrice(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", f.baseURL, f.cfg.ExternalSymbol)

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		price, err := f.fetchOnce(ctx, url)
		if err == nil {
			f.logger.Debug("Successfully fetched price",
				"symbol", f.cfg.ExternalSymbol,
				"price", price,
				"attempt", attempt)
			return price, nil
		}

		lastErr = err
		f.logger.Warn("Price fetch failed",
			"attempt", attempt,
			"max_retries", f.cfg.MaxRetries,
			"error", err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}

	return 0, fmt.Errorf("failed to fetch price after %d attempts: %w", f.cfg.MaxRetries, lastErr)
}

func (f *binancePriceFetcher) fetchOnce(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP request returned status %d", resp.StatusCode)
	}

	var tickerResp binanceTickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tickerResp); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	price, err := strconv.ParseFloat(tickerResp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q: %w", tickerResp.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("price %f is not positive", price)
	}

	return price, nil
}

// Close implements PriceFetcher
func (f *binancePriceFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
