package quoter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// Ensure httpOrderPlacer implements OrderPlacer interface
var _ OrderPlacer = (*httpOrderPlacer)(nil)

// httpOrderPlacer implements the OrderPlacer interface against the puente
// JSON API. All offers are placed on behalf of one maker address.
type httpOrderPlacer struct {
	client *http.Client
	cfg    *Config
	maker  common.Address
	logger *slog.Logger
}

// NewHTTPOrderPlacer creates an OrderPlacer speaking to a puente API server.
func NewHTTPOrderPlacer(cfg *Config, maker common.Address, logger *slog.Logger) (OrderPlacer, error) {
	if maker == (common.Address{}) {
		return nil, fmt.Errorf("order placer requires a maker address")
	}

	return &httpOrderPlacer{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		maker:  maker,
		logger: logger.With("component", "httpOrderPlacer"),
	}, nil
}

// PlaceOrder submits one offer to the configured book and returns its nonce.
func (p *httpOrderPlacer) PlaceOrder(ctx context.Context, req *OrderRequest) (uint64, error) {
	body := map[string]string{
		"maker":         p.maker.Hex(),
		"asset":         req.Asset.Hex(),
		"amount":        req.Amount.String(),
		"desired":       req.Desired.Hex(),
		"desiredAmount": req.DesiredAmount.String(),
	}

	url := fmt.Sprintf("%s/v1/books/%d/orders", p.cfg.PuenteAPIAddr, p.cfg.BookDomain)
	var resp struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := p.post(ctx, url, body, http.StatusCreated, &resp); err != nil {
		p.logger.Error("Failed to place offer",
			"asset", req.Asset.Hex(),
			"amount", req.Amount.String(),
			"error", err)
		return 0, fmt.Errorf("place order: %w", err)
	}

	p.logger.Info("Placed offer",
		"nonce", resp.Nonce,
		"asset", req.Asset.Hex(),
		"amount", req.Amount.String(),
		"desiredAmount", req.DesiredAmount.String())
	return resp.Nonce, nil
}

// CancelOrder deactivates one of the maker's offers. A missing order is not
// an error: the goal is the offer no longer being live, and a filled offer
// already satisfies that.
func (p *httpOrderPlacer) CancelOrder(ctx context.Context, nonce uint64) error {
	body := map[string]string{"caller": p.maker.Hex()}

	url := fmt.Sprintf("%s/v1/books/%d/orders/%d/cancel", p.cfg.PuenteAPIAddr, p.cfg.BookDomain, nonce)
	err := p.post(ctx, url, body, http.StatusOK, nil)
	if err != nil {
		if apiErr, ok := err.(*apiError); ok && apiErr.Status == http.StatusNotFound {
			p.logger.Info("Cancel skipped, offer not found", "nonce", nonce)
			return nil
		}
		p.logger.Error("Failed to cancel offer", "nonce", nonce, "error", err)
		return fmt.Errorf("cancel order %d: %w", nonce, err)
	}

	p.logger.Debug("Cancelled offer", "nonce", nonce)
	return nil
}

// Close implements OrderPlacer
func (p *httpOrderPlacer) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// apiError carries the HTTP status and server-reported message of a
// rejected request
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Message)
}

func (p *httpOrderPlacer) post(ctx context.Context, url string, body interface{}, wantStatus int, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var errResp struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &errResp)
		return &apiError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
