// Package stock answers "how many of this can be sold right now".
// Inventory levels live in a separate service; this package wraps the call.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	apperrors "github.com/commercekit/cart-service/pkg/errors"
	"github.com/commercekit/cart-service/pkg/httpclient"
)

// Checker reports the quantity of a stock item available for sale.
type Checker interface {
	Available(ctx context.Context, stockID string) (int, error)
}

// HTTPDoer abstracts the circuit-breaking HTTP client for testing.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// InventoryChecker queries the inventory service over HTTP.
type InventoryChecker struct {
	client  HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewInventoryChecker creates a checker backed by the inventory service at
// baseURL.
func NewInventoryChecker(client HTTPDoer, baseURL string, logger *slog.Logger) *InventoryChecker {
	return &InventoryChecker{
		client:  client,
		baseURL: baseURL,
		logger:  logger,
	}
}

type availabilityResponse struct {
	Data struct {
		StockID   string `json:"stock_id"`
		Available int    `json:"available"`
	} `json:"data"`
}

// Available returns the sellable quantity for stockID. Items the inventory
// service has never heard of report zero. An open circuit surfaces as
// service-unavailable so callers can distinguish "no stock" from "no answer".
func (c *InventoryChecker) Available(ctx context.Context, stockID string) (int, error) {
	url := fmt.Sprintf("%s/api/v1/inventory/%s", c.baseURL, stockID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("create inventory request: %w", err)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		if errors.Is(err, httpclient.ErrCircuitOpen) {
			return 0, apperrors.ServiceUnavailable("inventory service unavailable")
		}
		return 0, fmt.Errorf("call inventory service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, httpclient.ParseResponseError(resp)
	}

	var out availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode inventory response: %w", err)
	}

	return out.Data.Available, nil
}

// Disabled is a Checker for deployments without stock tracking. Everything
// is always available.
type Disabled struct{}

// Available always reports unlimited stock.
func (Disabled) Available(context.Context, string) (int, error) {
	return math.MaxInt32, nil
}
