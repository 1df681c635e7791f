package entity

import "context"

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}

// QuoteBatchEvent is published to the quote stream for every delivered batch.
type QuoteBatchEvent struct {
	Quotes      []QuotePayload `json:"quotes"`
	PublishedAt int64          `json:"published_at"`
}
