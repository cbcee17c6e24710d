package service

import (
	"testing"

	"chargehub/internal/models"
)

func TestMapPortStatus(t *testing.T) {
	tests := []struct {
		name     string
		reported string
		state    models.ChargerState
		premium  bool
		want     models.PortStatus
	}{
		{"online charging free", "online", models.ChargerStateOn, false, models.PortStatusChargingFree},
		{"online charging premium", "online", models.ChargerStateOn, true, models.PortStatusChargingPremium},
		{"online idle", "online", models.ChargerStateOff, false, models.PortStatusAvailable},
		{"online unknown state", "online", models.ChargerStateUnknown, false, models.PortStatusAvailable},
		{"offline wins over charging", "offline", models.ChargerStateOn, false, models.PortStatusOffline},
		{"offline wins over premium", "offline", models.ChargerStateOn, true, models.PortStatusOffline},
		{"offline idle", "offline", models.ChargerStateOff, false, models.PortStatusOffline},
		{"offline uppercase", "OFFLINE", models.ChargerStateOn, false, models.PortStatusOffline},
		{"offline padded", "  offline  ", models.ChargerStateOff, false, models.PortStatusOffline},
		{"unrecognized charging", "degraded", models.ChargerStateOn, false, models.PortStatusChargingFree},
		{"unrecognized idle", "degraded", models.ChargerStateOff, false, models.PortStatusAvailable},
		{"empty report charging", "", models.ChargerStateOn, true, models.PortStatusChargingPremium},
		{"empty report idle", "", models.ChargerStateOff, false, models.PortStatusAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapPortStatus(tt.reported, tt.state, tt.premium); got != tt.want {
				t.Errorf("MapPortStatus(%q, %s, %v) = %s, want %s", tt.reported, tt.state, tt.premium, got, tt.want)
			}
		})
	}
}

func TestPortStatusOccupies(t *testing.T) {
	occupying := map[models.PortStatus]bool{
		models.PortStatusAvailable:       false,
		models.PortStatusChargingFree:    true,
		models.PortStatusChargingPremium: true,
		models.PortStatusOccupied:        true,
		models.PortStatusOffline:         false,
		models.PortStatusMaintenance:     false,
		models.PortStatusFault:           false,
	}
	for status, want := range occupying {
		if got := status.Occupies(); got != want {
			t.Errorf("%s.Occupies() = %v, want %v", status, got, want)
		}
	}
}
