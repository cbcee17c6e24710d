package models

import (
	"fmt"
	"time"
)

// Session status values.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// Session is one user's occupancy of a port from activation to termination.
type Session struct {
	ID           string        `db:"id" json:"id"`
	UserID       int64         `db:"user_id" json:"user_id"`
	PortID       int64         `db:"port_id" json:"port_id"`
	StationID    string        `db:"station_id" json:"station_id"`
	Status       SessionStatus `db:"status" json:"status"`
	StartTime    time.Time     `db:"start_time" json:"start_time"`
	EndTime      *time.Time    `db:"end_time" json:"end_time,omitempty"`
	EnergyKWh    float64       `db:"energy_kwh" json:"energy_kwh"`
	ChargeMAh    float64       `db:"charge_mah" json:"charge_mah"`
	Cost         float64       `db:"cost" json:"cost"`
	LastActivity time.Time     `db:"last_activity" json:"last_activity"`
	IsPremium    bool          `db:"is_premium" json:"is_premium"`
}

// SessionKey addresses in-process registry and timer entries. It is the
// (device identifier, physical port index) pair from the wire, not the
// durable port id.
type SessionKey struct {
	DeviceID   string
	PortNumber int
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%d", k.DeviceID, k.PortNumber)
}

// StaleSession is a reconciler row: an expired ACTIVE session joined with
// the addressing needed to push an OFF command back to the device.
type StaleSession struct {
	Session
	DeviceID      string
	PhysicalIndex int
}

// Key returns the in-process address for the stale session's port.
func (s StaleSession) Key() SessionKey {
	return SessionKey{DeviceID: s.DeviceID, PortNumber: s.PhysicalIndex}
}
