package models

import "time"

// Station owns a set of ports. DeviceID is the identity its embedded
// controller uses on the message broker; PricePerKWh is nil when the station
// has no configured tariff and the default rate applies.
type Station struct {
	ID          string     `db:"id" json:"id"`
	DeviceID    string     `db:"device_id" json:"device_id"`
	Name        string     `db:"name" json:"name"`
	PricePerKWh *float64   `db:"price_per_kwh" json:"price_per_kwh,omitempty"`
	LastSeen    *time.Time `db:"last_seen" json:"last_seen,omitempty"`
}
