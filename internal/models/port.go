package models

import "time"

// PortStatus is the closed set of derived port states. MapPortStatus in the
// service package is the only place telemetry is turned into one of these.
type PortStatus string

const (
	PortStatusAvailable       PortStatus = "AVAILABLE"
	PortStatusChargingFree    PortStatus = "CHARGING_FREE"
	PortStatusChargingPremium PortStatus = "CHARGING_PREMIUM"
	PortStatusOffline         PortStatus = "OFFLINE"
	PortStatusMaintenance     PortStatus = "MAINTENANCE"
	PortStatusOccupied        PortStatus = "OCCUPIED"
	PortStatusFault           PortStatus = "FAULT"
)

// Occupies reports whether a port in this status counts as taken. The
// persisted occupied flag is always derived through this method.
func (s PortStatus) Occupies() bool {
	switch s {
	case PortStatusChargingFree, PortStatusChargingPremium, PortStatusOccupied:
		return true
	default:
		return false
	}
}

// Port is a durable, independently controllable charging outlet.
type Port struct {
	ID            int64      `db:"id" json:"id"`
	StationID     string     `db:"station_id" json:"station_id"`
	PhysicalIndex int        `db:"physical_index" json:"physical_index"`
	IsPremium     bool       `db:"is_premium" json:"is_premium"`
	Status        PortStatus `db:"status" json:"status"`
	Occupied      bool       `db:"occupied" json:"occupied"`
	LastUpdate    time.Time  `db:"last_update" json:"last_update"`
}

// PortRef is the directory answer for a (device, physical index) pair.
type PortRef struct {
	ID        int64
	StationID string
	IsPremium bool
}
