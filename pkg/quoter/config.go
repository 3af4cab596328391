package quoter

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the quoter service
type Config struct {
	// Puente API connection settings
	PuenteAPIAddr  string
	RequestTimeout time.Duration

	// Book and asset settings
	BookDomain uint32
	BaseAsset  common.Address // asset the quoter sells on the ask side
	QuoteAsset common.Address // asset the quoter sells on the bid side

	// External price reference
	ExternalSymbol string // e.g., "BTCUSDT"
	PriceSourceURL string // e.g., "https://api.binance.com"

	// Quoting parameters
	NumLevels         int
	BaseSpreadPercent float64
	PriceStepPercent  float64
	OrderSize         *big.Int // base-unit quantity offered per level
	UpdateInterval    time.Duration
	QuoterID          string

	// HTTP client settings
	HTTPTimeout time.Duration
	MaxRetries  int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("PUENTE_API_ADDR", "http://localhost:8080")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 5)
	v.SetDefault("BOOK_DOMAIN", 1)
	v.SetDefault("BASE_ASSET", "")
	v.SetDefault("QUOTE_ASSET", "")
	v.SetDefault("EXTERNAL_SYMBOL", "BTCUSDT")
	v.SetDefault("PRICE_SOURCE_URL", "https://api.binance.com")
	v.SetDefault("NUM_LEVELS", 3)
	v.SetDefault("BASE_SPREAD_PERCENT", 0.1)
	v.SetDefault("PRICE_STEP_PERCENT", 0.05)
	v.SetDefault("ORDER_SIZE", "1000000")
	v.SetDefault("UPDATE_INTERVAL_SECONDS", 10)
	v.SetDefault("QUOTER_ID", "quoter-01")
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 5)
	v.SetDefault("MAX_RETRIES", 3)

	// Allow environment variables
	v.AutomaticEnv()

	orderSize, ok := new(big.Int).SetString(v.GetString("ORDER_SIZE"), 10)
	if !ok {
		return nil, fmt.Errorf("invalid configuration: ORDER_SIZE %q is not an integer", v.GetString("ORDER_SIZE"))
	}

	cfg := &Config{
		PuenteAPIAddr:     v.GetString("PUENTE_API_ADDR"),
		RequestTimeout:    time.Duration(v.GetInt("REQUEST_TIMEOUT_SECONDS")) * time.Second,
		BookDomain:        v.GetUint32("BOOK_DOMAIN"),
		BaseAsset:         common.HexToAddress(v.GetString("BASE_ASSET")),
		QuoteAsset:        common.HexToAddress(v.GetString("QUOTE_ASSET")),
		ExternalSymbol:    v.GetString("EXTERNAL_SYMBOL"),
		PriceSourceURL:    v.GetString("PRICE_SOURCE_URL"),
		NumLevels:         v.GetInt("NUM_LEVELS"),
		BaseSpreadPercent: v.GetFloat64("BASE_SPREAD_PERCENT"),
		PriceStepPercent:  v.GetFloat64("PRICE_STEP_PERCENT"),
		OrderSize:         orderSize,
		UpdateInterval:    time.Duration(v.GetInt("UPDATE_INTERVAL_SECONDS")) * time.Second,
		QuoterID:          v.GetString("QUOTER_ID"),
		HTTPTimeout:       time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		MaxRetries:        v.GetInt("MAX_RETRIES"),
	}

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.PuenteAPIAddr == "" {
		return fmt.Errorf("PUENTE_API_ADDR must not be empty")
	}
	if cfg.BaseAsset == (common.Address{}) {
		return fmt.Errorf("BASE_ASSET must be set to a token address")
	}
	if cfg.QuoteAsset == (common.Address{}) {
		return fmt.Errorf("QUOTE_ASSET must be set to a token address")
	}
	if cfg.BaseAsset == cfg.QuoteAsset {
		return fmt.Errorf("BASE_ASSET and QUOTE_ASSET must differ")
	}
	if cfg.ExternalSymbol == "" {
		return fmt.Errorf("EXTERNAL_SYMBOL must not be empty")
	}
	if cfg.PriceSourceURL == "" {
		return fmt.Errorf("PRICE_SOURCE_URL must not be empty")
	}
	if cfg.NumLevels <= 0 {
		return fmt.Errorf("NUM_LEVELS must be positive")
	}
	if cfg.BaseSpreadPercent <= 0 {
		return fmt.Errorf("BASE_SPREAD_PERCENT must be positive")
	}
	if cfg.PriceStepPercent <= 0 {
		return fmt.Errorf("PRICE_STEP_PERCENT must be positive")
	}
	if cfg.OrderSize.Sign() <= 0 {
		return fmt.Errorf("ORDER_SIZE must be positive")
	}
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL_SECONDS must be positive")
	}
	if cfg.QuoterID == "" {
		return fmt.Errorf("QUOTER_ID must not be empty")
	}
	return nil
}
