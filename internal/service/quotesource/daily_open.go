package quotesource

import (
	"sync"
	"time"

	"github.com/krobus00/quote-service/internal/entity"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type openEntry struct {
	day   string
	price decimal.Decimal
}

// dailyOpen fills the open price with the first price observed during the
// current UTC day when the source has no authoritative open. Such quotes are
// flagged OpenPriceApproximate.
type dailyOpen struct {
	mu    sync.Mutex
	opens map[string]openEntry
	now   func() time.Time
}

func newDailyOpen(now func() time.Time) *dailyOpen {
	return &dailyOpen{opens: make(map[string]openEntry), now: now}
}

func (d *dailyOpen) apply(q *entity.Quote) {
	if q.OpenPrice == nil || !q.OpenPrice.IsPositive() {
		open := d.observe(q.Ticker, q.Price)
		q.OpenPrice = &open
		q.OpenPriceApproximate = true
		q.Change = nil
		q.ChangePercent = nil
	}

	if q.Change == nil {
		change := q.Price.Sub(*q.OpenPrice)
		q.Change = &change
	}
	if q.ChangePercent == nil && q.OpenPrice.IsPositive() {
		pct := q.Change.Div(*q.OpenPrice).Mul(hundred).Round(4)
		q.ChangePercent = &pct
	}
}

func (d *dailyOpen) observe(ticker string, price decimal.Decimal) decimal.Decimal {
	day := d.now().UTC().Format(time.DateOnly)

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.opens[ticker]
	if ok && e.day == day {
		return e.price
	}

	d.opens[ticker] = openEntry{day: day, price: price}
	return price
}

func (d *dailyOpen) forget(ticker string) {
	d.mu.Lock()
	delete(d.opens, ticker)
	d.mu.Unlock()
}
