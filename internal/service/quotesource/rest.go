package quotesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/quote-service/internal/config"
	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	defaultRESTBaseURL        = "https://api.binance.com"
	defaultRESTRequestTimeout = 5 * time.Second
	defaultRESTRateLimit      = 10
	defaultRESTBurst          = 10

	// returned by binance-compatible APIs for unknown symbols
	invalidSymbolCode = -1121
)

type ticker24hrResponse struct {
	Code               int    `json:"code"`
	Msg                string `json:"msg"`
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	OpenPrice          string `json:"openPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	CloseTime          int64  `json:"closeTime"`
}

// RESTSource polls a binance-compatible /api/v3/ticker/24hr endpoint. All
// sessions share one rate limiter and one circuit breaker.
type RESTSource struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	symbols    map[string]string
	opens      *dailyOpen
	now        func() time.Time
}

func NewRESTSource(cfg config.QuoteSourceConfig, opts ...Option) (*RESTSource, error) {
	o := newOptions(opts...)

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRESTBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse quote source base_url: %w", err)
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRESTRequestTimeout
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = defaultRESTRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultRESTBurst
	}

	symbols := make(map[string]string, len(cfg.SymbolMapping))
	for k, v := range cfg.SymbolMapping {
		symbols[entity.NormalizeTicker(k)] = strings.ToUpper(strings.TrimSpace(v))
	}

	return &RESTSource{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rateLimit), burst),
		breaker:    newBreaker(cfg.Breaker),
		symbols:    symbols,
		opens:      newDailyOpen(o.now),
		now:        o.now,
	}, nil
}

func newBreaker(cfg config.BreakerConfig) *gobreaker.CircuitBreaker[[]byte] {
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	consecutiveFailures := cfg.ConsecutiveFailures
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "quote-source-rest",
		MaxRequests: maxRequests,
		Interval:    cfg.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		// an unknown symbol is a valid answer from a healthy upstream
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, entity.ErrInstrumentNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
}

func (s *RESTSource) Name() string {
	return constant.QuoteSourceDriverREST
}

// Open confirms the instrument with one request before handing out a session.
func (s *RESTSource) Open(ctx context.Context, ticker string) (entity.QuoteSession, error) {
	symbol := s.resolveSymbol(ticker)
	if _, err := s.fetch(ctx, ticker, symbol); err != nil {
		return nil, err
	}

	return &restSession{source: s, ticker: ticker, symbol: symbol}, nil
}

func (s *RESTSource) resolveSymbol(ticker string) string {
	if symbol, ok := s.symbols[ticker]; ok && symbol != "" {
		return symbol
	}

	return ticker
}

func (s *RESTSource) fetch(ctx context.Context, ticker, symbol string) (*entity.Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := s.breaker.Execute(func() ([]byte, error) {
		return s.request(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}

	return s.parse(ticker, body)
}

func (s *RESTSource) request(ctx context.Context, symbol string) ([]byte, error) {
	endpoint := s.baseURL + "/api/v3/ticker/24hr?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr ticker24hrResponse
		_ = json.Unmarshal(body, &apiErr)

		if apiErr.Code == invalidSymbolCode || resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: symbol=%s code=%d message=%s", entity.ErrInstrumentNotFound, symbol, apiErr.Code, apiErr.Msg)
		}

		return nil, fmt.Errorf("ticker request failed: status=%d code=%d message=%s", resp.StatusCode, apiErr.Code, apiErr.Msg)
	}

	return body, nil
}

func (s *RESTSource) parse(ticker string, body []byte) (*entity.Quote, error) {
	var payload ticker24hrResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ticker parse failed: %w", err)
	}

	price, err := decimal.NewFromString(payload.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("ticker parse failed: lastPrice=%q: %w", payload.LastPrice, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("ticker parse failed: non-positive lastPrice %s", price.String())
	}

	q := &entity.Quote{
		Ticker:        ticker,
		Price:         price,
		RetrievedAt:   s.now(),
		OpenPrice:     optionalDecimal(payload.OpenPrice),
		Change:        optionalDecimal(payload.PriceChange),
		ChangePercent: optionalDecimal(payload.PriceChangePercent),
	}
	if payload.CloseTime > 0 {
		q.SourceTimestamp = time.UnixMilli(payload.CloseTime).UTC().Format(time.RFC3339)
	}

	s.opens.apply(q)

	return q, nil
}

func optionalDecimal(raw string) *decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}

	return &d
}

type restSession struct {
	source *RESTSource
	ticker string
	symbol string
}

func (s *restSession) Poll(ctx context.Context) (*entity.Quote, error) {
	return s.source.fetch(ctx, s.ticker, s.symbol)
}

func (s *restSession) Close() error {
	s.source.opens.forget(s.ticker)
	return nil
}
