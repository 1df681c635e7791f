package quotecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krobus00/quote-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newQuote(ticker, price string) entity.Quote {
	return entity.Quote{Ticker: ticker, Price: decimal.RequireFromString(price), RetrievedAt: time.Now()}
}

func TestQuoteCache_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := NewQuoteCache(200*time.Millisecond, WithClock(clock.Now))

	_, ok := cache.Get("BTCUSD")
	assert.False(t, ok)

	cache.Put("BTCUSD", newQuote("BTCUSD", "65000.12"))

	clock.Advance(199 * time.Millisecond)
	q, ok := cache.Get("BTCUSD")
	require.True(t, ok)
	assert.Equal(t, "65000.12", q.Price.String())

	clock.Advance(time.Millisecond)
	_, ok = cache.Get("BTCUSD")
	assert.False(t, ok, "an entry exactly TTL old is stale")
}

func TestQuoteCache_Delete(t *testing.T) {
	cache := NewQuoteCache(time.Minute)
	cache.Put("BTCUSD", newQuote("BTCUSD", "1"))
	cache.Put("ETHUSD", newQuote("ETHUSD", "2"))
	require.Equal(t, 2, cache.Len())

	cache.Delete("BTCUSD")
	cache.Delete("UNKNOWN")

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get("BTCUSD")
	assert.False(t, ok)
}

func TestQuoteCache_GetOrFetch(t *testing.T) {
	t.Run("hit skips fetch", func(t *testing.T) {
		cache := NewQuoteCache(time.Minute)
		cache.Put("BTCUSD", newQuote("BTCUSD", "10"))

		q, hit, err := cache.GetOrFetch(context.Background(), "BTCUSD", func(ctx context.Context) (*entity.Quote, error) {
			t.Fatal("fetch must not be called on a hit")
			return nil, nil
		})
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, "10", q.Price.String())
	})

	t.Run("miss fetches and stores", func(t *testing.T) {
		cache := NewQuoteCache(time.Minute)

		q, hit, err := cache.GetOrFetch(context.Background(), "BTCUSD", func(ctx context.Context) (*entity.Quote, error) {
			fresh := newQuote("BTCUSD", "11")
			return &fresh, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "11", q.Price.String())

		_, ok := cache.Get("BTCUSD")
		assert.True(t, ok)
	})

	t.Run("no data yet is not cached", func(t *testing.T) {
		cache := NewQuoteCache(time.Minute)

		q, _, err := cache.GetOrFetch(context.Background(), "BTCUSD", func(ctx context.Context) (*entity.Quote, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, q)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("error is not cached", func(t *testing.T) {
		cache := NewQuoteCache(time.Minute)
		boom := errors.New("boom")

		_, _, err := cache.GetOrFetch(context.Background(), "BTCUSD", func(ctx context.Context) (*entity.Quote, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("concurrent misses collapse", func(t *testing.T) {
		cache := NewQuoteCache(time.Minute)
		var calls atomic.Int32
		release := make(chan struct{})

		fetch := func(ctx context.Context) (*entity.Quote, error) {
			calls.Add(1)
			<-release
			q := newQuote("BTCUSD", "12")
			return &q, nil
		}

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				q, _, err := cache.GetOrFetch(context.Background(), "BTCUSD", fetch)
				assert.NoError(t, err)
				assert.Equal(t, "12", q.Price.String())
			}()
		}

		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestQuoteCache_GetOrFetch_DeleteDuringFetch(t *testing.T) {
	cache := NewQuoteCache(time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		q, hit, err := cache.GetOrFetch(context.Background(), "BTCUSD", func(ctx context.Context) (*entity.Quote, error) {
			close(started)
			<-release
			q := newQuote("BTCUSD", "1")
			return &q, nil
		})
		assert.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "1", q.Price.String())
	}()

	<-started
	cache.Delete("BTCUSD")
	close(release)
	<-done

	assert.Equal(t, 0, cache.Len(), "a fetch that outlived Delete must not store its quote")

	var calls atomic.Int32
	q, hit, err := cache.GetOrFetch(context.Background(), "BTCUSD", func(ctx context.Context) (*entity.Quote, error) {
		calls.Add(1)
		q := newQuote("BTCUSD", "2")
		return &q, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "2", q.Price.String())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.Len())
}
