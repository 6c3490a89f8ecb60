package coincap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmux/internal/feed"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:            "test-key",
		RESTBaseURL:       srv.URL,
		RequestsPerMinute: 600,
	})
}

func TestFetchParsesPrice(t *testing.T) {
	var gotPath, gotAuth string
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"bitcoin","priceUsd":"29342.123456"},"timestamp":1700000000000}`))
	})

	sample, err := src.Fetch(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, "/assets/bitcoin", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "BTC", sample.Symbol)
	assert.Equal(t, "29342.123456", sample.Price.String())
	assert.Equal(t, int64(1700000000000), sample.Time.UnixMilli())
	assert.Equal(t, "coincap", sample.Source)
}

func TestFetchRateLimitedIsTransient(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := src.Fetch(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, feed.IsTransient(err))
	assert.False(t, feed.IsPermanent(err))
}

func TestFetchUnknownAssetIsPermanent(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := src.Fetch(context.Background(), "WAT")
	require.Error(t, err)
	assert.True(t, feed.IsPermanent(err))
}

func TestFetchRejectedKeyIsPermanent(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := src.Fetch(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, feed.IsPermanent(err))
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := src.Fetch(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, feed.IsTransient(err))
}

func TestFetchMissingPriceIsTransient(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"bitcoin"}}`))
	})

	_, err := src.Fetch(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, feed.IsTransient(err))
}

func TestDescriptor(t *testing.T) {
	src := New(Config{Priority: 1})
	desc := src.Descriptor()
	assert.Equal(t, "coincap", desc.ID)
	assert.Equal(t, 1, desc.Priority)
	assert.True(t, desc.Streaming)
}
