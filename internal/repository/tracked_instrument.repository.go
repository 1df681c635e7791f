package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/quote-service/internal/entity"
)

type TrackedInstrumentRepository struct {
	db *sqlx.DB
}

func NewTrackedInstrumentRepository(db *sqlx.DB) *TrackedInstrumentRepository {
	return &TrackedInstrumentRepository{db: db}
}

func (r *TrackedInstrumentRepository) FindAll(ctx context.Context) ([]entity.TrackedInstrument, error) {
	var instruments []entity.TrackedInstrument
	err := r.db.SelectContext(ctx, &instruments, "SELECT * FROM tracked_instruments order by ticker asc")
	return instruments, err
}

// Create inserts the instrument; an existing ticker only has its source and
// updated_at refreshed.
func (r *TrackedInstrumentRepository) Create(ctx context.Context, instrument *entity.TrackedInstrument) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(instrument.TableName()).
		Columns(
			"ticker",
			"source",
			"created_at",
			"updated_at",
		).
		Values(
			instrument.Ticker,
			instrument.Source,
			instrument.CreatedAt,
			instrument.UpdatedAt,
		).
		Suffix("ON CONFLICT (ticker) DO UPDATE SET source = EXCLUDED.source, updated_at = EXCLUDED.updated_at RETURNING id")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	var id string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return err
	}

	instrument.ID = id

	return nil
}

func (r *TrackedInstrumentRepository) DeleteByTicker(ctx context.Context, ticker string) error {
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete(entity.TrackedInstrument{}.TableName()).
		Where(sq.Eq{"ticker": ticker}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
