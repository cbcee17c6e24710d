package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"chargehub/internal/models"
)

// Reported connectivity values carried in status messages.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StationWidePort marks a message that addresses the whole device rather than
// a single port.
const StationWidePort = -1

// Watts is a consumption reading. Field controllers send it as a JSON number
// or as a quoted numeric string; anything unreadable decodes to NaN so that
// validation clamps the value instead of the whole sample being lost.
type Watts float64

func (w *Watts) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*w = Watts(math.NaN())
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*w = Watts(f)
		return nil
	}
	var quoted string
	if err := json.Unmarshal(data, &quoted); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(quoted), 64); err == nil {
			*w = Watts(f)
			return nil
		}
	}
	*w = Watts(math.NaN())
	return nil
}

// ParseChargerState normalizes the transmitted ON/OFF flag.
func ParseChargerState(s string) models.ChargerState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON":
		return models.ChargerStateOn
	case "OFF":
		return models.ChargerStateOff
	default:
		return models.ChargerStateUnknown
	}
}

// UsageMessage is one periodic consumption sample published by a device.
type UsageMessage struct {
	PortNumber   *int   `json:"port_number"`
	Consumption  Watts  `json:"consumption"`
	Timestamp    int64  `json:"timestamp"`
	ChargerState string `json:"charger_state"`
}

// State returns the normalized charger flag.
func (m UsageMessage) State() models.ChargerState {
	return ParseChargerState(m.ChargerState)
}

// SampleTime converts the device's epoch-ms stamp, falling back to now for
// devices that omit or zero it.
func (m UsageMessage) SampleTime(now time.Time) time.Time {
	if m.Timestamp > 0 {
		return time.UnixMilli(m.Timestamp).UTC()
	}
	return now.UTC()
}

// ParseUsageMessage decodes a usage payload.
func ParseUsageMessage(payload []byte) (UsageMessage, error) {
	var msg UsageMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return UsageMessage{}, fmt.Errorf("decode usage message: %w", err)
	}
	return msg, nil
}

// StatusMessage reports a connectivity or charger-state change for one port,
// or for the whole station when PortNumber is StationWidePort.
type StatusMessage struct {
	PortNumber   *int   `json:"port_number"`
	Status       string `json:"status"`
	ChargerState string `json:"charger_state"`
	Timestamp    int64  `json:"timestamp"`
}

// State returns the normalized charger flag.
func (m StatusMessage) State() models.ChargerState {
	return ParseChargerState(m.ChargerState)
}

// SampleTime converts the device's epoch-ms stamp, falling back to now.
func (m StatusMessage) SampleTime(now time.Time) time.Time {
	if m.Timestamp > 0 {
		return time.UnixMilli(m.Timestamp).UTC()
	}
	return now.UTC()
}

// StationWide reports whether the message addresses the whole device.
func (m StatusMessage) StationWide() bool {
	return m.PortNumber != nil && *m.PortNumber == StationWidePort
}

// ParseStatusMessage decodes a status payload. Controllers announce loss of
// connectivity with a bare "offline" instead of a JSON object; that form
// normalizes to a station-wide offline report.
func ParseStatusMessage(payload []byte) (StatusMessage, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.EqualFold(trimmed, StatusOffline) || strings.EqualFold(trimmed, `"`+StatusOffline+`"`) {
		port := StationWidePort
		return StatusMessage{
			PortNumber:   &port,
			Status:       StatusOffline,
			ChargerState: string(models.ChargerStateUnknown),
		}, nil
	}
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return StatusMessage{}, fmt.Errorf("decode status message: %w", err)
	}
	return msg, nil
}

// ControlCommand drives one charger relay on a device.
type ControlCommand struct {
	Command    models.ChargerState `json:"command"`
	PortNumber int                 `json:"port_number"`
}
