package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/time/rate"

	"github.com/dan246/ff14-tw-market/config"
	"github.com/dan246/ff14-tw-market/errors"
	"github.com/dan246/ff14-tw-market/metric"
	"github.com/dan246/ff14-tw-market/pkg/retry"
)

// Fetcher retrieves a market snapshot for an item from the blocking HTTP
// collaborator. scope is a world ID or datacenter name.
type Fetcher interface {
	FetchMarketData(ctx context.Context, scope string, item int) (bson.Raw, error)
}

// UniversalisFetcher is the production Fetcher for the Universalis REST API.
// Requests are rate-limited and retried with backoff on transient failures.
type UniversalisFetcher struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	retry   retry.Config
	logger  *slog.Logger
	metrics *metric.Metrics
}

// FetcherOption configures a UniversalisFetcher.
type FetcherOption func(*UniversalisFetcher)

// WithFetcherLogger sets the logger.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *UniversalisFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFetcherMetrics wires fetch counters and latency.
func WithFetcherMetrics(m *metric.Metrics) FetcherOption {
	return func(f *UniversalisFetcher) { f.metrics = m }
}

// WithFetcherHTTPClient replaces the HTTP client, keeping its timeout.
func WithFetcherHTTPClient(client *http.Client) FetcherOption {
	return func(f *UniversalisFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// NewUniversalisFetcher creates a fetcher from the market configuration.
func NewUniversalisFetcher(cfg config.MarketConfig, options ...FetcherOption) (*UniversalisFetcher, error) {
	if cfg.APIBase == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "UniversalisFetcher", "NewUniversalisFetcher", "api_base")
	}

	ratePerSec := cfg.FetchRatePerSecond
	if ratePerSec <= 0 {
		ratePerSec = 8
	}
	burst := cfg.FetchBurst
	if burst <= 0 {
		burst = 1
	}

	f := &UniversalisFetcher{
		base:    cfg.APIBase,
		client:  &http.Client{Timeout: cfg.FetchTimeout()},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

// FetchMarketData performs a rate-limited, retried GET for the item's market
// snapshot and returns the document as BSON so it slots into the cache the
// same way feed payloads do.
func (f *UniversalisFetcher) FetchMarketData(ctx context.Context, scope string, item int) (bson.Raw, error) {
	if scope == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "UniversalisFetcher", "FetchMarketData", "empty scope")
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%v: %w", err, errors.ErrFetchTimeout),
			"UniversalisFetcher", "FetchMarketData", "await rate limit")
	}

	reqURL := fmt.Sprintf("%s/%s/%d?listings=50&entries=50", f.base, url.PathEscape(scope), item)

	if f.metrics != nil {
		f.metrics.Fetches.Inc()
	}
	start := time.Now()

	body, err := retry.DoWithResult(ctx, f.retry, func() ([]byte, error) {
		return f.get(ctx, reqURL)
	})
	if f.metrics != nil {
		f.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if f.metrics != nil {
			f.metrics.FetchFailures.Inc()
		}
		f.logger.Warn("market fetch failed", "scope", scope, "item", item, "error", err)
		return nil, errors.WrapTransient(
			fmt.Errorf("%v: %w", err, errors.ErrCollaborator),
			"UniversalisFetcher", "FetchMarketData", "fetch snapshot")
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%v: %w", err, errors.ErrDecodeFailed),
			"UniversalisFetcher", "FetchMarketData", "decode response")
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, errors.WrapInvalid(err, "UniversalisFetcher", "FetchMarketData", "encode snapshot")
	}
	return bson.Raw(raw), nil
}

// get performs one HTTP attempt. 4xx responses are not retried; network
// errors and 5xx/429 responses are.
func (f *UniversalisFetcher) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, retry.NonRetryable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	default:
		return nil, retry.NonRetryable(fmt.Errorf("upstream status %d", resp.StatusCode))
	}

	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
