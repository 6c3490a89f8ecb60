package feedhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmux/internal/feed"
	"feedmux/internal/gateway/sim"
)

func newTestServer(t *testing.T) (*Server, *feed.Aggregator) {
	t.Helper()
	agg := feed.NewAggregator(
		[]feed.Provider{sim.New(1, 2*time.Millisecond)},
		feed.Options{UpdateBuffer: 16},
	)
	t.Cleanup(agg.Close)
	srv, err := NewServer(ServerConfig{Addr: ":0", Agg: agg})
	require.NoError(t, err)
	return srv, agg
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func waitForSample(t *testing.T, agg *feed.Aggregator, sym string) {
	t.Helper()
	sub, err := agg.Subscribe(sym)
	require.NoError(t, err)
	t.Cleanup(sub.Cancel)
	select {
	case <-sub.C:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first sample")
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestPriceEndpoint(t *testing.T) {
	srv, agg := newTestServer(t)
	waitForSample(t, agg, "BTC")

	rec, body := get(t, srv, "/api/feed/price/btc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BTC", body["symbol"])
	assert.Equal(t, "sim", body["source"])
	assert.Contains(t, []any{"up", "down", "flat"}, body["direction"])
}

func TestPriceUnknownSymbol(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := get(t, srv, "/api/feed/price/WAT")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	srv, agg := newTestServer(t)
	waitForSample(t, agg, "ETH")

	rec, body := get(t, srv, "/api/feed/history/ETH?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ETH", body["symbol"])
	assert.NotZero(t, body["count"])
}

func TestProvidersEndpoint(t *testing.T) {
	srv, agg := newTestServer(t)
	waitForSample(t, agg, "BTC")

	rec, body := get(t, srv, "/api/feed/providers/BTC")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(feed.ModeStreaming), body["mode"])
	assert.Equal(t, "sim", body["provider"])

	rec, _ = get(t, srv, "/api/feed/providers/WAT")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsEndpointDisabled(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := get(t, srv, "/api/feed/events")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChartEndpoint(t *testing.T) {
	srv, agg := newTestServer(t)
	waitForSample(t, agg, "BTC")

	req := httptest.NewRequest(http.MethodGet, "/chart/BTC", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")
}
