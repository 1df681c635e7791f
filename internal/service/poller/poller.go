package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krobus00/quote-service/internal/entity"
	"github.com/krobus00/quote-service/internal/metrics"
	"github.com/krobus00/quote-service/internal/service/quotecache"
	"github.com/krobus00/quote-service/internal/service/session"
	"github.com/krobus00/quote-service/internal/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTickInterval     = 500 * time.Millisecond
	defaultRetrievalTimeout = time.Second
	defaultMaxConcurrency   = 16
)

// Registry is the part of session.SessionRegistry the poller depends on.
type Registry interface {
	Snapshot() []session.TrackedSession
	DeliverTracked(quotes []entity.Quote, deliver func(batch []entity.Quote)) []entity.Quote
}

// Broadcaster receives every non-empty batch. It must not block.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg entity.Message)
}

// QuoteObserver is notified with each delivered batch after viewers got it.
type QuoteObserver interface {
	ObserveQuotes(ctx context.Context, quotes []entity.Quote) error
}

type Config struct {
	TickInterval     time.Duration
	RetrievalTimeout time.Duration
	MaxConcurrency   int
}

type PollingScheduler struct {
	registry    Registry
	cache       *quotecache.QuoteCache
	broadcaster Broadcaster
	observers   []QuoteObserver
	cfg         Config
}

func NewPollingScheduler(registry Registry, cache *quotecache.QuoteCache, broadcaster Broadcaster, cfg Config, observers ...QuoteObserver) *PollingScheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = defaultRetrievalTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}

	return &PollingScheduler{
		registry:    registry,
		cache:       cache,
		broadcaster: broadcaster,
		observers:   observers,
		cfg:         cfg,
	}
}

// Run ticks immediately and then every TickInterval until ctx is done.
func (p *PollingScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"tick_interval":     p.cfg.TickInterval.String(),
		"retrieval_timeout": p.cfg.RetrievalTimeout.String(),
	}).Info("polling scheduler started")

	p.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("polling scheduler stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one polling cycle and returns the batch handed to the broadcaster.
func (p *PollingScheduler) Tick(ctx context.Context) []entity.Quote {
	if ctx.Err() != nil {
		return nil
	}

	started := time.Now()
	snapshot := p.registry.Snapshot()
	if len(snapshot) == 0 {
		metrics.ObserveTick(started, 0)
		return nil
	}

	results := make([]*entity.Quote, len(snapshot))

	g := &errgroup.Group{}
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, tracked := range snapshot {
		g.Go(func() error {
			results[i] = p.retrieve(ctx, tracked)
			return nil
		})
	}
	_ = g.Wait()

	quotes := make([]entity.Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}

	if len(quotes) == 0 {
		metrics.ObserveTick(started, 0)
		return nil
	}

	batch := p.registry.DeliverTracked(quotes, func(batch []entity.Quote) {
		p.broadcaster.Broadcast(ctx, entity.NewPricesMessage(batch))
	})
	metrics.ObserveTick(started, len(batch))

	if len(batch) == 0 {
		return nil
	}

	for _, observer := range p.observers {
		if err := observer.ObserveQuotes(ctx, batch); err != nil {
			logrus.WithError(err).Warn("quote observer failed")
		}
	}

	return batch
}

func (p *PollingScheduler) retrieve(ctx context.Context, tracked session.TrackedSession) *entity.Quote {
	q, hit, err := p.cache.GetOrFetch(ctx, tracked.Ticker, func(ctx context.Context) (*entity.Quote, error) {
		q, err := util.CallWithTimeout(ctx, p.cfg.RetrievalTimeout, tracked.Session.Poll)
		if err != nil || q == nil {
			return q, err
		}
		if !q.Price.IsPositive() {
			return nil, fmt.Errorf("%w: non-positive price %s", entity.ErrRetrievalFailure, q.Price.String())
		}
		return q, nil
	})
	if err != nil {
		err = classifyRetrievalError(err)
		result := "failure"
		if errors.Is(err, entity.ErrRetrievalTimeout) {
			result = "timeout"
		}
		metrics.ObserveRetrieval(result)

		logrus.WithFields(logrus.Fields{
			"ticker": tracked.Ticker,
		}).WithError(err).Warn("quote retrieval failed")
		return nil
	}

	switch {
	case hit:
		metrics.ObserveRetrieval("cache_hit")
	case q == nil:
		metrics.ObserveRetrieval("empty")
		return nil
	default:
		metrics.ObserveRetrieval("fetched")
	}

	return q
}

func classifyRetrievalError(err error) error {
	if errors.Is(err, entity.ErrRetrievalFailure) {
		return err
	}
	if errors.Is(err, util.ErrCallTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", entity.ErrRetrievalTimeout, err)
	}

	return fmt.Errorf("%w: %w", entity.ErrRetrievalFailure, err)
}
