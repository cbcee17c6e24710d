package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargehub/internal/models"
)

// ErrPortNotFound indicates no port row matches the device/index pair.
var ErrPortNotFound = errors.New("port not found")

// PortRepository handles persistence of charging ports.
type PortRepository struct {
	db *sql.DB
}

// NewPortRepository returns repository.
func NewPortRepository(db *sql.DB) *PortRepository {
	return &PortRepository{db: db}
}

// Resolve maps a device identity and physical port index to the stored port.
func (r *PortRepository) Resolve(ctx context.Context, deviceID string, physicalIndex int) (models.PortRef, error) {
	const query = `
		SELECT p.id, p.station_id, p.is_premium
		FROM ports p
		JOIN stations s ON s.id = p.station_id
		WHERE s.device_id = $1 AND p.physical_index = $2
	`
	var ref models.PortRef
	err := r.db.QueryRowContext(ctx, query, deviceID, physicalIndex).Scan(
		&ref.ID,
		&ref.StationID,
		&ref.IsPremium,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PortRef{}, ErrPortNotFound
	}
	if err != nil {
		return models.PortRef{}, err
	}
	return ref, nil
}

// Get loads one port row.
func (r *PortRepository) Get(ctx context.Context, portID int64) (*models.Port, error) {
	const query = `
		SELECT id, station_id, physical_index, is_premium, status, occupied, last_update
		FROM ports
		WHERE id = $1
	`
	var p models.Port
	err := r.db.QueryRowContext(ctx, query, portID).Scan(
		&p.ID,
		&p.StationID,
		&p.PhysicalIndex,
		&p.IsPremium,
		&p.Status,
		&p.Occupied,
		&p.LastUpdate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPortNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStatus persists the derived status and occupancy flag of a port.
func (r *PortRepository) UpdateStatus(ctx context.Context, portID int64, status models.PortStatus, occupied bool) error {
	const query = `
		UPDATE ports
		SET status = $2,
		    occupied = $3,
		    last_update = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, portID, status, occupied)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPortNotFound
	}
	return nil
}
