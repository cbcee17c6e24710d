package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrStationNotFound indicates missing station id.
var ErrStationNotFound = errors.New("station not found")

// StationRepository reads station tariffs and tracks device liveness.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

// PricePerKWh returns the station's tariff, nil when the station has none set.
func (r *StationRepository) PricePerKWh(ctx context.Context, stationID string) (*float64, error) {
	const query = `
		SELECT price_per_kwh
		FROM stations
		WHERE id = $1
	`
	var price *float64
	err := r.db.QueryRowContext(ctx, query, stationID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStationNotFound
	}
	if err != nil {
		return nil, err
	}
	return price, nil
}

// TouchLastSeen records that the station's controller was heard from. Missing
// rows are ignored, a report from an unprovisioned device is not an error here.
func (r *StationRepository) TouchLastSeen(ctx context.Context, stationID string, at time.Time) error {
	const query = `
		UPDATE stations
		SET last_seen = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, stationID, at)
	return err
}
