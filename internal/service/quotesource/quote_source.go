package quotesource

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/krobus00/quote-service/internal/config"
	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
)

type options struct {
	now        func() time.Time
	httpClient *http.Client
	seed       int64
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithSeed fixes the random walk of the simulated source.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

func newOptions(opts ...Option) options {
	o := options{
		now:  time.Now,
		seed: time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// New builds the quote source selected by cfg.Driver.
func New(cfg config.QuoteSourceConfig, opts ...Option) (entity.QuoteSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case constant.QuoteSourceDriverREST:
		return NewRESTSource(cfg, opts...)
	case constant.QuoteSourceDriverSimulated, "":
		return NewSimulatedSource(cfg.Simulated, opts...), nil
	default:
		return nil, fmt.Errorf("unknown quote source driver: %s", cfg.Driver)
	}
}
