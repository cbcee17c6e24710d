package repository

import (
	"context"
	"database/sql"

	"chargehub/internal/models"
)

// StatusLogRepository appends processed device status reports and maintains
// the one-row-per-port current-state projection.
type StatusLogRepository struct {
	db *sql.DB
}

// NewStatusLogRepository returns repository.
func NewStatusLogRepository(db *sql.DB) *StatusLogRepository {
	return &StatusLogRepository{db: db}
}

// Insert appends one status report to the log.
func (r *StatusLogRepository) Insert(ctx context.Context, entry *models.PortStatusLog) error {
	const query = `
		INSERT INTO port_status_log (port_id, device_id, reported_status, charger_state, mapped_status, recorded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.PortID,
		entry.DeviceID,
		entry.ReportedStatus,
		entry.ChargerState,
		entry.MappedStatus,
		entry.Timestamp,
	)
	return err
}

// UpsertCurrent replaces the port's current-status row.
func (r *StatusLogRepository) UpsertCurrent(ctx context.Context, entry *models.PortStatusLog) error {
	const query = `
		INSERT INTO port_status_current (port_id, device_id, reported_status, charger_state, mapped_status, recorded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (port_id) DO UPDATE SET
			device_id = EXCLUDED.device_id,
			reported_status = EXCLUDED.reported_status,
			charger_state = EXCLUDED.charger_state,
			mapped_status = EXCLUDED.mapped_status,
			recorded_at = EXCLUDED.recorded_at,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.PortID,
		entry.DeviceID,
		entry.ReportedStatus,
		entry.ChargerState,
		entry.MappedStatus,
		entry.Timestamp,
	)
	return err
}
