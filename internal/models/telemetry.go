package models

import "time"

// ChargerState is the ON/OFF flag transmitted by the device, distinct from
// the derived PortStatus.
type ChargerState string

const (
	ChargerStateOn      ChargerState = "ON"
	ChargerStateOff     ChargerState = "OFF"
	ChargerStateUnknown ChargerState = "UNKNOWN"
)

// ConsumptionSample is one validated positive usage reading attributed to a
// session.
type ConsumptionSample struct {
	SessionID    string       `db:"session_id" json:"session_id"`
	DeviceID     string       `db:"device_id" json:"device_id"`
	Watts        float64      `db:"watts" json:"watts"`
	ChargerState ChargerState `db:"charger_state" json:"charger_state"`
	Timestamp    time.Time    `db:"timestamp" json:"timestamp"`
}

// PortStatusLog is the append-only record of a processed status message,
// keeping both what the device reported and what it was mapped to.
type PortStatusLog struct {
	PortID         int64        `db:"port_id" json:"port_id"`
	DeviceID       string       `db:"device_id" json:"device_id"`
	ReportedStatus string       `db:"reported_status" json:"reported_status"`
	ChargerState   ChargerState `db:"charger_state" json:"charger_state"`
	MappedStatus   PortStatus   `db:"mapped_status" json:"mapped_status"`
	Timestamp      time.Time    `db:"timestamp" json:"timestamp"`
}
