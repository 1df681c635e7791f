package entity

import "time"

type TrackedInstrument struct {
	ID        string    `db:"id" json:"id"`
	Ticker    string    `db:"ticker" json:"ticker"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (t TrackedInstrument) TableName() string {
	return "tracked_instruments"
}
