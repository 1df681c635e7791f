package quotehistory

import (
	"context"
	"sync"

	"github.com/krobus00/quote-service/internal/entity"
)

const DefaultSize = 120

type ring struct {
	quotes []entity.Quote
	next   int
	full   bool
}

func (r *ring) push(q entity.Quote) {
	r.quotes[r.next] = q
	r.next = (r.next + 1) % len(r.quotes)
	if r.next == 0 {
		r.full = true
	}
}

// ordered returns the quotes oldest first.
func (r *ring) ordered() []entity.Quote {
	if !r.full {
		return append([]entity.Quote(nil), r.quotes[:r.next]...)
	}

	out := make([]entity.Quote, 0, len(r.quotes))
	out = append(out, r.quotes[r.next:]...)
	out = append(out, r.quotes[:r.next]...)
	return out
}

// Store keeps a bounded in-memory window of recent quotes per instrument.
type Store struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring
}

func NewStore(size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}

	return &Store{size: size, rings: make(map[string]*ring)}
}

func (s *Store) Record(quotes ...entity.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		r, ok := s.rings[q.Ticker]
		if !ok {
			r = &ring{quotes: make([]entity.Quote, s.size)}
			s.rings[q.Ticker] = r
		}
		r.push(q)
	}
}

// ObserveQuotes records a delivered batch.
func (s *Store) ObserveQuotes(_ context.Context, quotes []entity.Quote) error {
	s.Record(quotes...)
	return nil
}

// Recent returns up to limit quotes of ticker, oldest first. limit <= 0 means all.
func (s *Store) Recent(ticker string, limit int) []entity.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[ticker]
	if !ok {
		return []entity.Quote{}
	}

	quotes := r.ordered()
	if limit > 0 && len(quotes) > limit {
		quotes = quotes[len(quotes)-limit:]
	}

	return quotes
}

func (s *Store) Latest(ticker string) (entity.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[ticker]
	if !ok {
		return entity.Quote{}, false
	}

	idx := r.next - 1
	if idx < 0 {
		idx = len(r.quotes) - 1
	}

	return r.quotes[idx], true
}

func (s *Store) Forget(_ context.Context, ticker string) error {
	s.mu.Lock()
	delete(s.rings, ticker)
	s.mu.Unlock()
	return nil
}
