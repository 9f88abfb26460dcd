package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan246/ff14-tw-market/config"
	"github.com/dan246/ff14-tw-market/errors"
	"github.com/dan246/ff14-tw-market/pkg/retry"
)

func fetcherConfig(base string) config.MarketConfig {
	return config.MarketConfig{
		APIBase:             base,
		FetchTimeoutSeconds: 2,
		FetchRatePerSecond:  1000,
		FetchBurst:          100,
	}
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestFetchMarketData(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"itemID": 5506, "minPrice": 42}`))
	}))
	defer srv.Close()

	f, err := NewUniversalisFetcher(fetcherConfig(srv.URL))
	require.NoError(t, err)

	raw, err := f.FetchMarketData(context.Background(), "陸行鳥", 5506)
	require.NoError(t, err)

	assert.Equal(t, "/陸行鳥/5506", gotPath)
	assert.Equal(t, "listings=50&entries=50", gotQuery)
	assert.Equal(t, int32(5506), raw.Lookup("itemID").Int32())
	assert.Equal(t, int32(42), raw.Lookup("minPrice").Int32())
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, err := NewUniversalisFetcher(fetcherConfig(srv.URL))
	require.NoError(t, err)
	f.retry = fastRetry()

	_, err = f.FetchMarketData(context.Background(), "陸行鳥", 5506)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err)) // surfaced as collaborator failure
	assert.Equal(t, int32(1), hits.Load(), "4xx must not be retried")
}

func TestFetchServerErrorRetriedToSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"itemID": 1}`))
	}))
	defer srv.Close()

	f, err := NewUniversalisFetcher(fetcherConfig(srv.URL))
	require.NoError(t, err)
	f.retry = fastRetry()

	raw, err := f.FetchMarketData(context.Background(), "陸行鳥", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), raw.Lookup("itemID").Int32())
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchExhaustedRetriesFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f, err := NewUniversalisFetcher(fetcherConfig(srv.URL))
	require.NoError(t, err)
	f.retry = fastRetry()

	_, err = f.FetchMarketData(context.Background(), "陸行鳥", 1)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	f, err := NewUniversalisFetcher(fetcherConfig(srv.URL))
	require.NoError(t, err)

	_, err = f.FetchMarketData(context.Background(), "陸行鳥", 1)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestFetchRejectsEmptyScope(t *testing.T) {
	f, err := NewUniversalisFetcher(fetcherConfig("http://example.invalid"))
	require.NoError(t, err)

	_, err = f.FetchMarketData(context.Background(), "", 1)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewUniversalisFetcherRequiresBase(t *testing.T) {
	_, err := NewUniversalisFetcher(config.MarketConfig{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
