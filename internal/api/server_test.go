package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/pricewatch/internal/api/handler"
	"github.com/albapepper/pricewatch/internal/config"
	"github.com/albapepper/pricewatch/internal/cooldown"
	"github.com/albapepper/pricewatch/internal/metrics"
	"github.com/albapepper/pricewatch/internal/monitor"
)

type fakeMonitor struct {
	store *cooldown.Store
	last  *monitor.CycleResult
}

func (f *fakeMonitor) LastResult() (monitor.CycleResult, bool) {
	if f.last == nil {
		return monitor.CycleResult{}, false
	}
	return *f.last, true
}

func (f *fakeMonitor) Store() *cooldown.Store { return f.store }

type breaker string

func (b breaker) BreakerState() string { return string(b) }

func newTestServer(t *testing.T, mon *fakeMonitor, check handler.HealthFunc, cfg config.ServerConfig) *httptest.Server {
	t.Helper()
	h := handler.New(mon, breaker("closed"), "file", check)
	srv := httptest.NewServer(NewRouter(h, metrics.New().Handler(), cfg))
	t.Cleanup(srv.Close)
	return srv
}

func newStore() *cooldown.Store {
	s := cooldown.New(24*time.Hour, true, nil)
	now := time.Now()
	s.Replace(map[string]string{
		"111": cooldown.FormatTimestamp(now.Add(-time.Hour)),
		"222": cooldown.FormatTimestamp(now.Add(-48 * time.Hour)),
		"333": "not a time",
	})
	return s
}

func get(t *testing.T, url string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{store: newStore()}, nil, config.ServerConfig{})

	resp := get(t, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Process-Time"))

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthPersistence(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestServer(t, &fakeMonitor{store: newStore()}, func(context.Context) error { return nil }, config.ServerConfig{})
		resp := get(t, srv.URL+"/health/persistence", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unhealthy", func(t *testing.T) {
		check := func(context.Context) error { return errors.New("connection refused") }
		srv := newTestServer(t, &fakeMonitor{store: newStore()}, check, config.ServerConfig{})
		resp := get(t, srv.URL+"/health/persistence", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body map[string]any
		decode(t, resp, &body)
		assert.Equal(t, "unhealthy", body["status"])
		assert.Equal(t, "file", body["backend"])
		assert.Equal(t, "connection refused", body["error"])
	})
}

func TestStatus(t *testing.T) {
	mon := &fakeMonitor{store: newStore()}
	srv := newTestServer(t, mon, nil, config.ServerConfig{})

	var before handler.StatusResponse
	decode(t, get(t, srv.URL+"/api/v1/status", nil), &before)
	assert.Nil(t, before.LastCycle)
	assert.Equal(t, "closed", before.UpstreamCircuit)
	assert.Equal(t, 3, before.Persistence.Entries)
	assert.Equal(t, 24.0, before.Persistence.CooldownHours)

	mon.last = &monitor.CycleResult{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
		Items:     12,
		Eligible:  2,
		Delivered: 1,
		Err:       errors.New("fetch history for 9: upstream down"),
	}

	var after handler.StatusResponse
	decode(t, get(t, srv.URL+"/api/v1/status", nil), &after)
	require.NotNil(t, after.LastCycle)
	assert.Equal(t, "run-1", after.LastCycle.RunID)
	assert.Equal(t, monitor.ResultAborted, after.LastCycle.Result)
	assert.Equal(t, 90.0, after.LastCycle.DurationSeconds)
	assert.Equal(t, 12, after.LastCycle.Items)
	assert.Contains(t, after.LastCycle.Error, "upstream down")
}

func TestCooldownList(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{store: newStore()}, nil, config.ServerConfig{})

	resp := get(t, srv.URL+"/api/v1/cooldown", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	assert.True(t, strings.HasPrefix(etag, `W/"`))

	var body handler.CooldownResponse
	decode(t, resp, &body)
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Entries, 3)
	assert.Equal(t, "111", body.Entries[0].SKU)
	assert.True(t, body.Entries[0].OnCooldown)
	assert.Equal(t, "222", body.Entries[1].SKU)
	assert.False(t, body.Entries[1].OnCooldown)
	assert.Equal(t, "333", body.Entries[2].SKU)
	assert.False(t, body.Entries[2].Valid)
	assert.Nil(t, body.Entries[2].FetchedAt)

	t.Run("not modified", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/v1/cooldown", map[string]string{"If-None-Match": etag})
		assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	})

	t.Run("limit", func(t *testing.T) {
		var body handler.CooldownResponse
		decode(t, get(t, srv.URL+"/api/v1/cooldown?limit=1", nil), &body)
		assert.Equal(t, 3, body.Total)
		assert.Len(t, body.Entries, 1)
	})

	t.Run("bad limit", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/v1/cooldown?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCooldownSKU(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{store: newStore()}, nil, config.ServerConfig{})

	resp := get(t, srv.URL+"/api/v1/cooldown/111", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry handler.CooldownEntry
	decode(t, resp, &entry)
	assert.Equal(t, "111", entry.SKU)
	require.NotNil(t, entry.ExpiresAt)
	assert.True(t, entry.ExpiresAt.After(time.Now()))

	resp = get(t, srv.URL+"/api/v1/cooldown/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errBody map[string]map[string]string
	decode(t, resp, &errBody)
	assert.Equal(t, "NOT_FOUND", errBody["error"]["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{store: newStore()}, nil, config.ServerConfig{})

	resp := get(t, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "pricewatch_cooldown_entries")
}

func TestSwaggerDoc(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{store: newStore()}, nil, config.ServerConfig{})

	resp := get(t, srv.URL+"/docs/doc.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "pricewatch status API")
	assert.Contains(t, string(raw), "/cooldown/{sku}")
}

func TestCORS(t *testing.T) {
	cfg := config.ServerConfig{CORSAllowOrigins: []string{"https://dash.example"}}
	srv := newTestServer(t, &fakeMonitor{store: newStore()}, nil, cfg)

	resp := get(t, srv.URL+"/health", map[string]string{"Origin": "https://dash.example"})
	assert.Equal(t, "https://dash.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = get(t, srv.URL+"/health", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := config.ServerConfig{RateLimitEnabled: true, RateLimitRequests: 2}
	srv := newTestServer(t, &fakeMonitor{store: newStore()}, nil, cfg)

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/health", nil).StatusCode)
	resp := get(t, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}
