package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"chargehub/internal/models"
)

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// ErrActiveSessionExists indicates the partial unique index rejected a second
// active session on the same port.
var ErrActiveSessionExists = errors.New("active session already exists for port")

const uniqueViolation = "23505"

// InsertActive creates a new ACTIVE session row. The sessions_one_active_per_port
// index is the authority on the one-session-per-port rule; a violation is
// surfaced as ErrActiveSessionExists so the caller can re-read the winner.
func (r *SessionRepository) InsertActive(ctx context.Context, session *models.Session) error {
	const query = `
		INSERT INTO sessions (id, user_id, port_id, station_id, status, start_time, energy_kwh, charge_mah, cost, last_activity, is_premium, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, $7, $8, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.PortID,
		session.StationID,
		session.Status,
		session.StartTime,
		session.LastActivity,
		session.IsPremium,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrActiveSessionExists
		}
		return err
	}
	return nil
}

// ErrNoActiveSession indicates the port has no running session.
var ErrNoActiveSession = errors.New("no active session")

const sessionColumns = `id, user_id, port_id, station_id, status, start_time, end_time, energy_kwh, charge_mah, cost, last_activity, is_premium`

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.PortID,
		&s.StationID,
		&s.Status,
		&s.StartTime,
		&s.EndTime,
		&s.EnergyKWh,
		&s.ChargeMAh,
		&s.Cost,
		&s.LastActivity,
		&s.IsPremium,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindActiveByPort returns the running session for a port, if any.
func (r *SessionRepository) FindActiveByPort(ctx context.Context, portID int64) (*models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE port_id = $1 AND status = 'ACTIVE'
	`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, portID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ErrSessionNotFound indicates missing session id.
var ErrSessionNotFound = errors.New("session not found")

// FindByID loads one session.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1
	`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// TouchActivity refreshes last_activity on a running session.
func (r *SessionRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE sessions
		SET last_activity = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoActiveSession
	}
	return nil
}

// AddConsumption adds one sample's energy and charge in a single statement and
// refreshes last_activity. The status guard makes the write a no-op once the
// session is completed, no matter what the caller believes.
func (r *SessionRepository) AddConsumption(ctx context.Context, id string, energyKWh, chargeMAh float64, at time.Time) error {
	const query = `
		UPDATE sessions
		SET energy_kwh = energy_kwh + $2,
		    charge_mah = charge_mah + $3,
		    last_activity = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`
	result, err := r.db.ExecContext(ctx, query, id, energyKWh, chargeMAh, at)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoActiveSession
	}
	return nil
}

// Complete finalizes a running session with its end time and cost. Completing
// an already completed session reports ErrNoActiveSession.
func (r *SessionRepository) Complete(ctx context.Context, id string, endTime time.Time, cost float64) error {
	const query = `
		UPDATE sessions
		SET status = 'COMPLETED',
		    end_time = $2,
		    cost = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`
	result, err := r.db.ExecContext(ctx, query, id, endTime, cost)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoActiveSession
	}
	return nil
}

// FindStale returns running sessions whose last activity predates the cutoff,
// joined with the device addressing needed to command the charger off.
func (r *SessionRepository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.StaleSession, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT se.id, se.user_id, se.port_id, se.station_id, se.status, se.start_time, se.end_time, se.energy_kwh, se.charge_mah, se.cost, se.last_activity, se.is_premium,
		       st.device_id, p.physical_index
		FROM sessions se
		JOIN ports p ON p.id = se.port_id
		JOIN stations st ON st.id = se.station_id
		WHERE se.status = 'ACTIVE' AND se.last_activity < $1
		ORDER BY se.last_activity
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stale []models.StaleSession
	for rows.Next() {
		var s models.StaleSession
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.PortID,
			&s.StationID,
			&s.Status,
			&s.StartTime,
			&s.EndTime,
			&s.EnergyKWh,
			&s.ChargeMAh,
			&s.Cost,
			&s.LastActivity,
			&s.IsPremium,
			&s.DeviceID,
			&s.PhysicalIndex,
		); err != nil {
			return nil, err
		}
		stale = append(stale, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stale, nil
}
