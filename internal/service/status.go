package service

import (
	"strings"

	"chargehub/internal/models"
	"chargehub/internal/mqtt"
)

// MapPortStatus derives a port status from one status report. Precedence:
// reported offline wins over everything, then the charger flag, then the safe
// default. This is the only place telemetry becomes a PortStatus.
func MapPortStatus(reported string, state models.ChargerState, premium bool) models.PortStatus {
	switch {
	case strings.EqualFold(strings.TrimSpace(reported), mqtt.StatusOffline):
		return models.PortStatusOffline
	case state == models.ChargerStateOn:
		if premium {
			return models.PortStatusChargingPremium
		}
		return models.PortStatusChargingFree
	default:
		return models.PortStatusAvailable
	}
}
