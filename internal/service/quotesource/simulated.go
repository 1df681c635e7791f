package quotesource

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/shopspring/decimal"
)

// maximum relative move per poll
var simulatedStep = decimal.NewFromFloat(0.001)

// SimulatedSource produces a random walk for a fixed set of instruments. It has
// no notion of a session open, so every quote carries an approximated open.
type SimulatedSource struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
	opens  *dailyOpen
	now    func() time.Time
}

func NewSimulatedSource(seeds map[string]float64, opts ...Option) *SimulatedSource {
	o := newOptions(opts...)

	prices := make(map[string]decimal.Decimal, len(seeds))
	for ticker, price := range seeds {
		if price <= 0 {
			continue
		}
		// config keys arrive lower-cased
		prices[entity.NormalizeTicker(ticker)] = decimal.NewFromFloat(price)
	}

	return &SimulatedSource{
		prices: prices,
		rng:    rand.New(rand.NewSource(o.seed)),
		opens:  newDailyOpen(o.now),
		now:    o.now,
	}
}

func (s *SimulatedSource) Name() string {
	return constant.QuoteSourceDriverSimulated
}

func (s *SimulatedSource) Open(_ context.Context, ticker string) (entity.QuoteSession, error) {
	s.mu.Lock()
	_, ok := s.prices[ticker]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrInstrumentNotFound, ticker)
	}

	return &simulatedSession{source: s, ticker: ticker}, nil
}

func (s *SimulatedSource) next(ticker string) (*entity.Quote, error) {
	s.mu.Lock()
	last, ok := s.prices[ticker]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", entity.ErrInstrumentNotFound, ticker)
	}

	move := decimal.NewFromFloat(s.rng.Float64()*2 - 1).Mul(simulatedStep)
	price := last.Add(last.Mul(move)).Round(2)
	if !price.IsPositive() {
		price = last
	}
	s.prices[ticker] = price
	s.mu.Unlock()

	q := &entity.Quote{
		Ticker:      ticker,
		Price:       price,
		RetrievedAt: s.now(),
	}
	s.opens.apply(q)

	return q, nil
}

type simulatedSession struct {
	source *SimulatedSource
	ticker string
}

func (s *simulatedSession) Poll(ctx context.Context) (*entity.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.source.next(s.ticker)
}

func (s *simulatedSession) Close() error {
	s.source.opens.forget(s.ticker)
	return nil
}
