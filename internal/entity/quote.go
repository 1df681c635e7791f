package entity

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one point-in-time price observation. It is never mutated after construction.
type Quote struct {
	Ticker        string
	Price         decimal.Decimal
	RetrievedAt   time.Time
	Change        *decimal.Decimal
	ChangePercent *decimal.Decimal
	OpenPrice     *decimal.Decimal
	// OpenPriceApproximate marks an open price that is the first price observed
	// during the day rather than the authoritative session open.
	OpenPriceApproximate bool
	SourceTimestamp      string
}

// QuotePayload is the wire shape of a Quote.
type QuotePayload struct {
	Ticker               string   `json:"ticker"`
	Price                float64  `json:"price"`
	Change               *float64 `json:"change,omitempty"`
	ChangePercent        *float64 `json:"changePercent,omitempty"`
	OpenPrice            *float64 `json:"openPrice,omitempty"`
	OpenPriceApproximate bool     `json:"openPriceApproximate,omitempty"`
	SourceTimestamp      string   `json:"sourceTimestamp,omitempty"`
	RetrievedAt          int64    `json:"retrievedAt"`
}

//go:generate mockgen -destination=../mock/quote_source.go -package=mock github.com/krobus00/quote-service/internal/entity QuoteSource,QuoteSession

// QuoteSource opens retrieval sessions for instruments. Open fails with
// ErrInstrumentNotFound when the source cannot confirm the instrument exists.
type QuoteSource interface {
	Name() string
	Open(ctx context.Context, ticker string) (QuoteSession, error)
}

// QuoteSession is the live retrieval handle of one tracked instrument.
// Poll returns a nil quote and nil error when the source has no data yet.
type QuoteSession interface {
	Poll(ctx context.Context) (*Quote, error)
	Close() error
}

func (q Quote) ToPayload() QuotePayload {
	return QuotePayload{
		Ticker:               q.Ticker,
		Price:                q.Price.InexactFloat64(),
		Change:               decimalPtrToFloat(q.Change),
		ChangePercent:        decimalPtrToFloat(q.ChangePercent),
		OpenPrice:            decimalPtrToFloat(q.OpenPrice),
		OpenPriceApproximate: q.OpenPriceApproximate,
		SourceTimestamp:      q.SourceTimestamp,
		RetrievedAt:          q.RetrievedAt.UnixMilli(),
	}
}

func (p QuotePayload) ToQuote() Quote {
	return Quote{
		Ticker:               p.Ticker,
		Price:                decimal.NewFromFloat(p.Price),
		RetrievedAt:          time.UnixMilli(p.RetrievedAt),
		Change:               floatPtrToDecimal(p.Change),
		ChangePercent:        floatPtrToDecimal(p.ChangePercent),
		OpenPrice:            floatPtrToDecimal(p.OpenPrice),
		OpenPriceApproximate: p.OpenPriceApproximate,
		SourceTimestamp:      p.SourceTimestamp,
	}
}

func QuotesToPayloads(quotes []Quote) []QuotePayload {
	payloads := make([]QuotePayload, 0, len(quotes))
	for _, q := range quotes {
		payloads = append(payloads, q.ToPayload())
	}

	return payloads
}

func decimalPtrToFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}

	v := d.InexactFloat64()
	return &v
}

func floatPtrToDecimal(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}

	v := decimal.NewFromFloat(*f)
	return &v
}
