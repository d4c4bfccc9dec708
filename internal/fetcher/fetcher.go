// Package fetcher reads current stock quantities from the retail inventory API.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/logging"
	"restock-monitor/internal/resilience"
)

// Fetcher returns the current available quantity of a product in a store.
// Every failure is reported as a *errors.FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, productID, storeID string) (int, error)
}

const (
	DefaultBaseURL   = "https://lenta.com"
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	stockPath       = "/api-gateway/v1/catalog/items/stock"
	maxResponseSize = 1 << 20
)

// Config configures an HTTPFetcher.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Breakers guards each product and store pair separately; nil disables
	// circuit breaking.
	Breakers *resilience.Group
}

// HTTPFetcher queries the catalog stock endpoint.
type HTTPFetcher struct {
	baseURL   string
	userAgent string
	client    *http.Client
	breakers  *resilience.Group
	logger    zerolog.Logger
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher(cfg Config, logger zerolog.Logger) *HTTPFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPFetcher{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		breakers:  cfg.Breakers,
		logger:    logger.With().Str("component", "fetcher").Logger(),
	}
}

type stockResponse struct {
	Stock *json.Number `json:"stock"`
}

// Fetch returns the quantity reported by the endpoint. A response without
// a stock field counts as zero.
func (f *HTTPFetcher) Fetch(ctx context.Context, productID, storeID string) (int, error) {
	if f.breakers == nil {
		return f.fetch(ctx, productID, storeID)
	}

	cb := f.breakers.Get(productID + "@" + storeID)
	qty, err := resilience.ExecuteWithResult(cb, ctx, func(ctx context.Context) (int, error) {
		return f.fetch(ctx, productID, storeID)
	})
	if apperrors.Is(err, resilience.ErrCircuitOpen) {
		stats := cb.Stats()
		f.logger.Warn().
			Str("breaker", stats.Name).
			Float64("failure_rate", stats.FailureRate()).
			Int64("rejected", stats.TotalRejected).
			Msg("Circuit open, skipping fetch")
		return 0, apperrors.NewFetchError(productID, storeID, "circuit open", err)
	}
	return qty, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, productID, storeID string) (qty int, err error) {
	endpoint := f.baseURL + stockPath + "?" + url.Values{
		"id":      {productID},
		"storeId": {storeID},
	}.Encode()

	start := time.Now()
	defer func() {
		logging.LogAPICall(f.logger, http.MethodGet, stockPath, time.Since(start), err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, apperrors.NewFetchError(productID, storeID, "building request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, apperrors.NewFetchError(productID, storeID, "transport", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return 0, apperrors.NewFetchError(productID, storeID, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var body stockResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return 0, apperrors.NewFetchError(productID, storeID, "malformed response", err)
	}

	if body.Stock == nil {
		return 0, nil
	}

	n, err := body.Stock.Int64()
	if err != nil {
		return 0, apperrors.NewFetchError(productID, storeID, "non-integer stock", err)
	}
	if n < 0 {
		return 0, apperrors.NewFetchError(productID, storeID, fmt.Sprintf("negative stock %d", n), nil)
	}
	return int(n), nil
}
