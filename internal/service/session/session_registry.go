package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/krobus00/quote-service/internal/entity"
	"github.com/krobus00/quote-service/internal/metrics"
	"github.com/krobus00/quote-service/internal/service/quotecache"
	"github.com/sirupsen/logrus"
)

// TrackedSession is one entry of a registry snapshot.
type TrackedSession struct {
	Ticker  string
	Session entity.QuoteSession
}

// TrackedInstrumentStore persists the tracked set so it survives restarts.
type TrackedInstrumentStore interface {
	FindAll(ctx context.Context) ([]entity.TrackedInstrument, error)
	Create(ctx context.Context, instrument *entity.TrackedInstrument) error
	DeleteByTicker(ctx context.Context, ticker string) error
}

// Forgetter drops per-instrument state kept outside the registry.
type Forgetter interface {
	Forget(ctx context.Context, ticker string) error
}

type Option func(*SessionRegistry)

func WithStore(store TrackedInstrumentStore) Option {
	return func(r *SessionRegistry) {
		r.store = store
	}
}

// WithOnChange registers a hook called with the sorted tracked list after every add or remove.
func WithOnChange(fn func(tickers []string)) Option {
	return func(r *SessionRegistry) {
		r.onChange = fn
	}
}

func WithForgetters(forgetters ...Forgetter) Option {
	return func(r *SessionRegistry) {
		r.forgetters = append(r.forgetters, forgetters...)
	}
}

type SessionRegistry struct {
	source entity.QuoteSource
	cache  *quotecache.QuoteCache

	mu       sync.RWMutex
	sessions map[string]entity.QuoteSession

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex

	store      TrackedInstrumentStore
	forgetters []Forgetter

	// serializes change notifications so the last one always carries the latest list
	notifyMu sync.Mutex
	onChange func(tickers []string)
}

func NewSessionRegistry(source entity.QuoteSource, cache *quotecache.QuoteCache, opts ...Option) *SessionRegistry {
	r := &SessionRegistry{
		source:   source,
		cache:    cache,
		sessions: make(map[string]entity.QuoteSession),
		keyLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Add starts tracking ticker. Adding an already tracked instrument is a no-op.
func (r *SessionRegistry) Add(ctx context.Context, ticker string) error {
	return r.add(ctx, ticker, r.store != nil)
}

func (r *SessionRegistry) add(ctx context.Context, raw string, persist bool) error {
	ticker, err := entity.ValidateTicker(raw)
	if err != nil {
		return err
	}

	unlock := r.lockKey(ticker)
	defer unlock()

	if r.IsTracked(ticker) {
		return nil
	}

	sess, err := r.source.Open(ctx, ticker)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", entity.ErrSourceUnavailable, ticker, err)
	}
	if sess == nil {
		return fmt.Errorf("%w: %s: no session returned", entity.ErrSourceUnavailable, ticker)
	}

	r.mu.Lock()
	r.sessions[ticker] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.TrackedInstruments.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"ticker": ticker,
		"source": r.source.Name(),
	}).Info("instrument tracked")

	if persist {
		now := time.Now().UTC()
		err := r.store.Create(ctx, &entity.TrackedInstrument{
			Ticker:    ticker,
			Source:    r.source.Name(),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			logrus.WithField("ticker", ticker).WithError(err).Error("failed to persist tracked instrument")
		}
	}

	r.notifyChange()

	return nil
}

// Remove stops tracking ticker. Once it returns, no batch delivered through
// DeliverTracked contains the instrument.
func (r *SessionRegistry) Remove(ctx context.Context, raw string) error {
	ticker := entity.NormalizeTicker(raw)

	unlock := r.lockKey(ticker)
	defer unlock()

	r.mu.Lock()
	sess, ok := r.sessions[ticker]
	if ok {
		delete(r.sessions, ticker)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrNotTracked, ticker)
	}

	metrics.TrackedInstruments.Set(float64(count))

	if err := sess.Close(); err != nil {
		logrus.WithField("ticker", ticker).WithError(err).Warn("failed to close quote session")
	}
	r.cache.Delete(ticker)

	for _, f := range r.forgetters {
		if err := f.Forget(ctx, ticker); err != nil {
			logrus.WithField("ticker", ticker).WithError(err).Warn("failed to forget instrument state")
		}
	}

	if r.store != nil {
		if err := r.store.DeleteByTicker(ctx, ticker); err != nil {
			logrus.WithField("ticker", ticker).WithError(err).Error("failed to delete persisted tracked instrument")
		}
	}

	logrus.WithField("ticker", ticker).Info("instrument untracked")
	r.notifyChange()

	return nil
}

// List returns the tracked instruments in lexicographic order.
func (r *SessionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.listLocked()
}

func (r *SessionRegistry) listLocked() []string {
	tickers := make([]string, 0, len(r.sessions))
	for ticker := range r.sessions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	return tickers
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) IsTracked(ticker string) bool {
	r.mu.RLock()
	_, ok := r.sessions[entity.NormalizeTicker(ticker)]
	r.mu.RUnlock()
	return ok
}

// Snapshot returns the tracked sessions sorted by ticker.
func (r *SessionRegistry) Snapshot() []TrackedSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]TrackedSession, 0, len(r.sessions))
	for _, ticker := range r.listLocked() {
		snapshot = append(snapshot, TrackedSession{Ticker: ticker, Session: r.sessions[ticker]})
	}

	return snapshot
}

// DeliverTracked drops quotes of instruments that are no longer tracked and hands
// the rest to deliver while membership is held stable. deliver must not block and
// must not call back into the registry.
func (r *SessionRegistry) DeliverTracked(quotes []entity.Quote, deliver func(batch []entity.Quote)) []entity.Quote {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batch := make([]entity.Quote, 0, len(quotes))
	for _, q := range quotes {
		if _, ok := r.sessions[q.Ticker]; ok {
			batch = append(batch, q)
		}
	}

	if len(batch) > 0 && deliver != nil {
		deliver(batch)
	}

	return batch
}

// Restore reopens sessions for every persisted instrument. Failures are logged
// per instrument.
func (r *SessionRegistry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	instruments, err := r.store.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load tracked instruments: %w", err)
	}

	for _, instrument := range instruments {
		if err := r.add(ctx, instrument.Ticker, false); err != nil {
			logrus.WithField("ticker", instrument.Ticker).WithError(err).Warn("failed to restore tracked instrument")
		}
	}

	logrus.WithField("count", r.Count()).Info("tracked instruments restored")

	return nil
}

// Close releases every session. The persisted set is left untouched.
func (r *SessionRegistry) Close(_ context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]entity.QuoteSession)
	r.mu.Unlock()

	metrics.TrackedInstruments.Set(0)

	var errs []error
	for ticker, sess := range sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ticker, err))
		}
		r.cache.Delete(ticker)
	}

	return errors.Join(errs...)
}

func (r *SessionRegistry) notifyChange() {
	if r.onChange == nil {
		return
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.onChange(r.List())
}

func (r *SessionRegistry) lockKey(ticker string) func() {
	r.keyLocksMu.Lock()
	l, ok := r.keyLocks[ticker]
	if !ok {
		l = &sync.Mutex{}
		r.keyLocks[ticker] = l
	}
	r.keyLocksMu.Unlock()

	l.Lock()
	return l.Unlock
}
