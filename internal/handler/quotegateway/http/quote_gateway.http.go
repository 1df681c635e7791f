package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/quote-service/internal/config"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

const defaultHistoryLimit = 60

type Registry interface {
	Add(ctx context.Context, ticker string) error
	Remove(ctx context.Context, ticker string) error
	List() []string
	Count() int
	IsTracked(ticker string) bool
}

type ViewerCounter interface {
	Count() int
}

type HistoryReader interface {
	Recent(ticker string, limit int) []entity.Quote
}

type SnapshotReader interface {
	GetAll(ctx context.Context) ([]entity.QuotePayload, error)
}

type AddTickerRequest struct {
	ApiKey string `json:"api_key"`
	Ticker string `json:"ticker"`
}

type TickersResponse struct {
	Tickers []string `json:"tickers"`
	Count   int      `json:"count"`
}

type HistoryResponse struct {
	Ticker string                `json:"ticker"`
	Quotes []entity.QuotePayload `json:"quotes"`
}

type HealthResponse struct {
	Status             string `json:"status"`
	TrackedInstruments int    `json:"tracked_instruments"`
	Viewers            int    `json:"viewers"`
	Timestamp          int64  `json:"timestamp"`
}

type Handler struct {
	registry  Registry
	viewers   ViewerCounter
	history   HistoryReader
	snapshots SnapshotReader
	ws        http.Handler
	apiKeys   []config.APIKeyConfig
}

// NewQuoteGatewayHTTPHandler wires the tracked-instrument CRUD surface. snapshots
// may be nil when no redis is configured.
func NewQuoteGatewayHTTPHandler(registry Registry, viewers ViewerCounter, history HistoryReader, snapshots SnapshotReader, ws http.Handler, apiKeys []config.APIKeyConfig) *Handler {
	return &Handler{
		registry:  registry,
		viewers:   viewers,
		history:   history,
		snapshots: snapshots,
		ws:        ws,
		apiKeys:   apiKeys,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	if h.ws != nil {
		mux.Handle("GET /ws", h.ws)
	}
	mux.HandleFunc("GET /api/tickers", h.ListTickers)
	mux.HandleFunc("POST /api/tickers", h.AddTicker)
	mux.HandleFunc("DELETE /api/tickers/{ticker}", h.RemoveTicker)
	mux.HandleFunc("GET /api/tickers/{ticker}/history", h.TickerHistory)
	mux.HandleFunc("GET /api/quotes", h.Quotes)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *Handler) ListTickers(w http.ResponseWriter, r *http.Request) {
	tickers := h.registry.List()
	writeJSON(w, http.StatusOK, TickersResponse{Tickers: tickers, Count: len(tickers)})
}

func (h *Handler) AddTicker(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req AddTickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	if err := h.authorize(resolveAPIKey(r, req.ApiKey)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.Ticker) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing required fields"})
		return
	}

	err := h.registry.Add(r.Context(), req.Ticker)
	if err != nil {
		writeRegistryError(w, req.Ticker, err)
		return
	}

	h.ListTickers(w, r)
}

func (h *Handler) RemoveTicker(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(resolveAPIKey(r, "")); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	ticker := r.PathValue("ticker")
	err := h.registry.Remove(r.Context(), ticker)
	if err != nil {
		writeRegistryError(w, ticker, err)
		return
	}

	h.ListTickers(w, r)
}

func (h *Handler) TickerHistory(w http.ResponseWriter, r *http.Request) {
	ticker := entity.NormalizeTicker(r.PathValue("ticker"))
	if !h.registry.IsTracked(ticker) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": entity.ErrNotTracked.Error()})
		return
	}

	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Ticker: ticker,
		Quotes: entity.QuotesToPayloads(h.history.Recent(ticker, limit)),
	})
}

// Quotes serves the latest snapshot shared through redis, limited to the
// instruments tracked by this process.
func (h *Handler) Quotes(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "quote snapshot is not configured"})
		return
	}

	payloads, err := h.snapshots.GetAll(r.Context())
	if err != nil {
		logrus.WithError(err).Error("failed to read quote snapshot")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	quotes := make([]entity.QuotePayload, 0, len(payloads))
	for _, p := range payloads {
		if h.registry.IsTracked(p.Ticker) {
			quotes = append(quotes, p)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:             "ok",
		TrackedInstruments: h.registry.Count(),
		Viewers:            h.viewers.Count(),
		Timestamp:          time.Now().UnixMilli(),
	})
}

func writeRegistryError(w http.ResponseWriter, ticker string, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidIdentifier):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, entity.ErrNotTracked):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, entity.ErrInstrumentNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, entity.ErrSourceUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
	default:
		logrus.WithField("ticker", ticker).WithError(err).Error("tracked instrument mutation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveAPIKey(r *http.Request, bodyKey string) string {
	if headerKey := strings.TrimSpace(r.Header.Get("X-API-Key")); headerKey != "" {
		return headerKey
	}

	return strings.TrimSpace(bodyKey)
}

// authorize accepts every request when no api keys are configured.
func (h *Handler) authorize(rawAPIKey string) error {
	if len(h.apiKeys) == 0 {
		return nil
	}

	return validateAPIKey(h.apiKeys, rawAPIKey)
}

func validateAPIKey(keys []config.APIKeyConfig, rawAPIKey string) error {
	apiKey := strings.TrimSpace(rawAPIKey)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	now := time.Now().UTC()
	for _, candidate := range keys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAPIKeyInvalid
		}
		if !hasExpiry {
			return nil
		}

		if !now.Before(expiredAt) {
			return errAPIKeyExpired
		}

		return nil
	}

	return errAPIKeyInvalid
}

func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
