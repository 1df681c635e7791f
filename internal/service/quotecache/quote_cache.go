package quotecache

import (
	"context"
	"sync"
	"time"

	"github.com/krobus00/quote-service/internal/entity"
	"github.com/krobus00/quote-service/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 200 * time.Millisecond

type entry struct {
	quote     entity.Quote
	fetchedAt time.Time
}

// QuoteCache keeps the latest quote per instrument for a short TTL so that
// bursts of reads inside one tick do not reach the source twice.
type QuoteCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	// bumped by Delete; a fetch started under an older generation is not stored
	generations map[string]uint64
	ttl         time.Duration
	now         func() time.Time
	group       singleflight.Group
}

type Option func(*QuoteCache)

func WithClock(now func() time.Time) Option {
	return func(c *QuoteCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewQuoteCache(ttl time.Duration, opts ...Option) *QuoteCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &QuoteCache{
		entries:     make(map[string]entry),
		generations: make(map[string]uint64),
		ttl:         ttl,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the cached quote when it was stored less than TTL ago.
func (c *QuoteCache) Get(ticker string) (entity.Quote, bool) {
	c.mu.RLock()
	e, ok := c.entries[ticker]
	c.mu.RUnlock()
	if !ok {
		return entity.Quote{}, false
	}

	if c.now().Sub(e.fetchedAt) >= c.ttl {
		return entity.Quote{}, false
	}

	return e.quote, true
}

func (c *QuoteCache) Put(ticker string, quote entity.Quote) {
	c.mu.Lock()
	c.entries[ticker] = entry{quote: quote, fetchedAt: c.now()}
	c.mu.Unlock()
}

func (c *QuoteCache) Delete(ticker string) {
	c.mu.Lock()
	delete(c.entries, ticker)
	c.generations[ticker]++
	c.mu.Unlock()
	c.group.Forget(ticker)
}

func (c *QuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrFetch serves from cache or calls fetch, collapsing concurrent misses for
// the same ticker into one call. A nil quote is returned as-is and not cached,
// nor is a quote whose ticker was deleted while the fetch ran.
func (c *QuoteCache) GetOrFetch(ctx context.Context, ticker string, fetch func(ctx context.Context) (*entity.Quote, error)) (*entity.Quote, bool, error) {
	if q, ok := c.Get(ticker); ok {
		metrics.CacheHitsTotal.Inc()
		return &q, true, nil
	}
	metrics.CacheMissesTotal.Inc()

	v, err, _ := c.group.Do(ticker, func() (any, error) {
		gen := c.generation(ticker)
		q, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if q != nil {
			c.putIfGeneration(ticker, gen, *q)
		}
		return q, nil
	})
	if err != nil {
		return nil, false, err
	}

	q, _ := v.(*entity.Quote)
	return q, false, nil
}

func (c *QuoteCache) generation(ticker string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[ticker]
}

// putIfGeneration stores quote unless the ticker was deleted since gen was read.
func (c *QuoteCache) putIfGeneration(ticker string, gen uint64, quote entity.Quote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[ticker] != gen {
		return false
	}
	c.entries[ticker] = entry{quote: quote, fetchedAt: c.now()}
	return true
}
