package repository

import (
	"context"
	"database/sql"

	"chargehub/internal/models"
)

// ConsumptionRepository persists validated usage samples.
type ConsumptionRepository struct {
	db *sql.DB
}

// NewConsumptionRepository returns repository.
func NewConsumptionRepository(db *sql.DB) *ConsumptionRepository {
	return &ConsumptionRepository{db: db}
}

// Insert stores one sample.
func (r *ConsumptionRepository) Insert(ctx context.Context, sample *models.ConsumptionSample) error {
	const query = `
		INSERT INTO consumption_samples (session_id, device_id, watts, charger_state, recorded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		sample.SessionID,
		sample.DeviceID,
		sample.Watts,
		sample.ChargerState,
		sample.Timestamp,
	)
	return err
}
