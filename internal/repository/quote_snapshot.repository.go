package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/redis/go-redis/v9"
)

// QuoteSnapshotRepository keeps the latest delivered quote per instrument in a
// redis hash so other processes can read prices without a websocket.
type QuoteSnapshotRepository struct {
	client *redis.Client
	key    string
}

func NewQuoteSnapshotRepository(client *redis.Client) *QuoteSnapshotRepository {
	return &QuoteSnapshotRepository{client: client, key: constant.QuoteSnapshotKey}
}

func (r *QuoteSnapshotRepository) ObserveQuotes(ctx context.Context, quotes []entity.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	values := make(map[string]any, len(quotes))
	for _, q := range quotes {
		payload, err := json.Marshal(q.ToPayload())
		if err != nil {
			return err
		}
		values[q.Ticker] = payload
	}

	return r.client.HSet(ctx, r.key, values).Err()
}

// GetAll returns the stored quotes sorted by ticker.
func (r *QuoteSnapshotRepository) GetAll(ctx context.Context) ([]entity.QuotePayload, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}

	payloads := make([]entity.QuotePayload, 0, len(raw))
	for ticker, value := range raw {
		var payload entity.QuotePayload
		if err := json.Unmarshal([]byte(value), &payload); err != nil {
			return nil, fmt.Errorf("decode snapshot of %s: %w", ticker, err)
		}
		payloads = append(payloads, payload)
	}

	sort.Slice(payloads, func(i, j int) bool {
		return payloads[i].Ticker < payloads[j].Ticker
	})

	return payloads, nil
}

func (r *QuoteSnapshotRepository) Forget(ctx context.Context, ticker string) error {
	return r.client.HDel(ctx, r.key, ticker).Err()
}

func (r *QuoteSnapshotRepository) Close() error {
	return r.client.Close()
}
