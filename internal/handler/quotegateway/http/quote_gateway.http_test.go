package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/quote-service/internal/config"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mu      sync.Mutex
	tickers map[string]bool
	addErr  error
}

func newFakeRegistry(tickers ...string) *fakeRegistry {
	r := &fakeRegistry{tickers: map[string]bool{}}
	for _, t := range tickers {
		r.tickers[t] = true
	}
	return r
}

func (r *fakeRegistry) Add(_ context.Context, raw string) error {
	ticker, err := entity.ValidateTicker(raw)
	if err != nil {
		return err
	}
	if r.addErr != nil {
		return r.addErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickers[ticker] = true
	return nil
}

func (r *fakeRegistry) Remove(_ context.Context, raw string) error {
	ticker := entity.NormalizeTicker(raw)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.tickers[ticker] {
		return fmt.Errorf("%w: %s", entity.ErrNotTracked, ticker)
	}
	delete(r.tickers, ticker)
	return nil
}

func (r *fakeRegistry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tickers))
	for t := range r.tickers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *fakeRegistry) Count() int { return len(r.List()) }

func (r *fakeRegistry) IsTracked(ticker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickers[ticker]
}

type fixedViewers int

func (v fixedViewers) Count() int { return int(v) }

type fakeHistory struct {
	quotes map[string][]entity.Quote
}

func (h fakeHistory) Recent(ticker string, limit int) []entity.Quote {
	q := h.quotes[ticker]
	if len(q) > limit {
		q = q[len(q)-limit:]
	}
	return q
}

type fakeSnapshots struct {
	payloads []entity.QuotePayload
	err      error
}

func (s fakeSnapshots) GetAll(context.Context) ([]entity.QuotePayload, error) {
	return s.payloads, s.err
}

func newTestServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHandler_Tickers(t *testing.T) {
	registry := newFakeRegistry("BTCUSD")
	srv := newTestServer(t, NewQuoteGatewayHTTPHandler(registry, fixedViewers(2), fakeHistory{}, nil, nil, nil))

	resp, out := doRequest(t, http.MethodGet, srv.URL+"/api/tickers", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"BTCUSD"}, out["tickers"])

	resp, out = doRequest(t, http.MethodPost, srv.URL+"/api/tickers", `{"ticker":" ethusd "}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"BTCUSD", "ETHUSD"}, out["tickers"])

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/tickers", `{"ticker":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/tickers", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = doRequest(t, http.MethodDelete, srv.URL+"/api/tickers/btcusd", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"ETHUSD"}, out["tickers"])

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/api/tickers/BTCUSD", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_AddTicker_SourceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown instrument", fmt.Errorf("%w: ABC: %w", entity.ErrSourceUnavailable, entity.ErrInstrumentNotFound), http.StatusNotFound},
		{"source down", fmt.Errorf("%w: ABC: boom", entity.ErrSourceUnavailable), http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newFakeRegistry()
			registry.addErr = tt.err
			srv := newTestServer(t, NewQuoteGatewayHTTPHandler(registry, fixedViewers(0), fakeHistory{}, nil, nil, nil))

			resp, _ := doRequest(t, http.MethodPost, srv.URL+"/api/tickers", `{"ticker":"ABC"}`, nil)
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Equal(t, 0, registry.Count())
		})
	}
}

func TestHandler_APIKey(t *testing.T) {
	keys := []config.APIKeyConfig{
		{Name: "ops", Key: "secret", Active: true},
		{Name: "old", Key: "inactive", Active: false},
		{Name: "expired", Key: "expired", Active: true, ExpiredAt: "2020-01-01"},
	}
	registry := newFakeRegistry()
	srv := newTestServer(t, NewQuoteGatewayHTTPHandler(registry, fixedViewers(0), fakeHistory{}, nil, nil, keys))

	resp, out := doRequest(t, http.MethodPost, srv.URL+"/api/tickers", `{"ticker":"BTCUSD"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, errAPIKeyMissing.Error(), out["error"])

	resp, out = doRequest(t, http.MethodPost, srv.URL+"/api/tickers", `{"ticker":"BTCUSD"}`, map[string]string{"X-API-Key": "inactive"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, errAPIKeyInactive.Error(), out["error"])

	resp, out = doRequest(t, http.MethodPost, srv.URL+"/api/tickers", `{"ticker":"BTCUSD"}`, map[string]string{"X-API-Key": "expired"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, errAPIKeyExpired.Error(), out["error"])

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/api/tickers", `{"ticker":"BTCUSD","api_key":"secret"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/api/tickers/BTCUSD", "", map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, registry.IsTracked("BTCUSD"))

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/api/tickers", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_History(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	history := fakeHistory{quotes: map[string][]entity.Quote{
		"BTCUSD": {
			{Ticker: "BTCUSD", Price: decimal.RequireFromString("1"), RetrievedAt: now},
			{Ticker: "BTCUSD", Price: decimal.RequireFromString("2"), RetrievedAt: now},
			{Ticker: "BTCUSD", Price: decimal.RequireFromString("3"), RetrievedAt: now},
		},
		"ETHUSD": {{Ticker: "ETHUSD", Price: decimal.RequireFromString("9"), RetrievedAt: now}},
	}}
	srv := newTestServer(t, NewQuoteGatewayHTTPHandler(newFakeRegistry("BTCUSD"), fixedViewers(0), history, nil, nil, nil))

	resp, out := doRequest(t, http.MethodGet, srv.URL+"/api/tickers/btcusd/history?limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	quotes := out["quotes"].([]any)
	require.Len(t, quotes, 2)
	assert.Equal(t, 2.0, quotes[0].(map[string]any)["price"])
	assert.Equal(t, 3.0, quotes[1].(map[string]any)["price"])

	// retained history of an untracked instrument is never served
	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/api/tickers/ETHUSD/history", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/api/tickers/BTCUSD/history?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Quotes(t *testing.T) {
	registry := newFakeRegistry("BTCUSD")

	srv := newTestServer(t, NewQuoteGatewayHTTPHandler(registry, fixedViewers(0), fakeHistory{}, nil, nil, nil))
	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/api/quotes", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	snapshots := fakeSnapshots{payloads: []entity.QuotePayload{
		{Ticker: "BTCUSD", Price: 65000.12},
		{Ticker: "ETHUSD", Price: 3000},
	}}
	srv = newTestServer(t, NewQuoteGatewayHTTPHandler(registry, fixedViewers(0), fakeHistory{}, snapshots, nil, nil))
	resp, out := doRequest(t, http.MethodGet, srv.URL+"/api/quotes", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	quotes := out["quotes"].([]any)
	require.Len(t, quotes, 1)
	assert.Equal(t, "BTCUSD", quotes[0].(map[string]any)["ticker"])

	srv = newTestServer(t, NewQuoteGatewayHTTPHandler(registry, fixedViewers(0), fakeHistory{}, fakeSnapshots{err: errors.New("redis down")}, nil, nil))
	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/api/quotes", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandler_Health(t *testing.T) {
	srv := newTestServer(t, NewQuoteGatewayHTTPHandler(newFakeRegistry("BTCUSD", "ETHUSD"), fixedViewers(3), fakeHistory{}, nil, nil, nil))

	resp, out := doRequest(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, 2.0, out["tracked_instruments"])
	assert.Equal(t, 3.0, out["viewers"])
}

func TestValidateAPIKey_FutureExpiry(t *testing.T) {
	keys := []config.APIKeyConfig{{Key: "k", Active: true, ExpiredAt: time.Now().Add(time.Hour).Format(time.RFC3339)}}
	assert.NoError(t, validateAPIKey(keys, " k "))

	keys[0].ExpiredAt = 42
	assert.ErrorIs(t, validateAPIKey(keys, "k"), errAPIKeyInvalid)
}
