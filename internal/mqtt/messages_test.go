package mqtt

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"chargehub/internal/models"
)

func TestParseUsageMessage(t *testing.T) {
	msg, err := ParseUsageMessage([]byte(`{"port_number":1,"consumption":150,"timestamp":1700000000000,"charger_state":"ON"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.PortNumber == nil || *msg.PortNumber != 1 {
		t.Fatalf("port number = %v, want 1", msg.PortNumber)
	}
	if float64(msg.Consumption) != 150 {
		t.Errorf("consumption = %v, want 150", float64(msg.Consumption))
	}
	if msg.State() != models.ChargerStateOn {
		t.Errorf("state = %v, want ON", msg.State())
	}
	want := time.UnixMilli(1700000000000).UTC()
	if got := msg.SampleTime(time.Now()); !got.Equal(want) {
		t.Errorf("sample time = %v, want %v", got, want)
	}
}

func TestParseUsageMessageMissingPort(t *testing.T) {
	msg, err := ParseUsageMessage([]byte(`{"consumption":42,"charger_state":"ON"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.PortNumber != nil {
		t.Errorf("port number = %v, want nil", *msg.PortNumber)
	}
}

func TestParseUsageMessageMalformed(t *testing.T) {
	if _, err := ParseUsageMessage([]byte(`{"port_number":`)); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestWattsTolerantDecoding(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
		wantNaN bool
	}{
		{name: "number", payload: `{"consumption":150.5}`, want: 150.5},
		{name: "numeric string", payload: `{"consumption":"150.5"}`, want: 150.5},
		{name: "padded numeric string", payload: `{"consumption":" 42 "}`, want: 42},
		{name: "garbage string", payload: `{"consumption":"lots"}`, wantNaN: true},
		{name: "null", payload: `{"consumption":null}`, wantNaN: true},
		{name: "bool", payload: `{"consumption":true}`, wantNaN: true},
		{name: "missing", payload: `{}`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg UsageMessage
			if err := json.Unmarshal([]byte(tt.payload), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got := float64(msg.Consumption)
			if tt.wantNaN {
				if !math.IsNaN(got) {
					t.Errorf("consumption = %v, want NaN", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("consumption = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStatusMessage(t *testing.T) {
	msg, err := ParseStatusMessage([]byte(`{"port_number":2,"status":"online","charger_state":"OFF","timestamp":1700000000000}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.PortNumber == nil || *msg.PortNumber != 2 {
		t.Fatalf("port number = %v, want 2", msg.PortNumber)
	}
	if msg.Status != StatusOnline {
		t.Errorf("status = %q, want %q", msg.Status, StatusOnline)
	}
	if msg.State() != models.ChargerStateOff {
		t.Errorf("state = %v, want OFF", msg.State())
	}
	if msg.StationWide() {
		t.Error("single-port message reported as station-wide")
	}
}

func TestParseStatusMessageOfflineLiteral(t *testing.T) {
	for _, payload := range []string{"offline", `"offline"`, " OFFLINE "} {
		msg, err := ParseStatusMessage([]byte(payload))
		if err != nil {
			t.Fatalf("payload %q: unexpected error: %v", payload, err)
		}
		if !msg.StationWide() {
			t.Errorf("payload %q: not normalized to station-wide", payload)
		}
		if msg.Status != StatusOffline {
			t.Errorf("payload %q: status = %q, want %q", payload, msg.Status, StatusOffline)
		}
		if msg.State() != models.ChargerStateUnknown {
			t.Errorf("payload %q: state = %v, want UNKNOWN", payload, msg.State())
		}
	}
}

func TestParseStatusMessageMalformed(t *testing.T) {
	if _, err := ParseStatusMessage([]byte(`not json at all`)); err == nil {
		t.Fatal("expected error for unparseable payload")
	}
}

func TestParseChargerState(t *testing.T) {
	tests := []struct {
		in   string
		want models.ChargerState
	}{
		{"ON", models.ChargerStateOn},
		{"on", models.ChargerStateOn},
		{" Off ", models.ChargerStateOff},
		{"", models.ChargerStateUnknown},
		{"banana", models.ChargerStateUnknown},
	}
	for _, tt := range tests {
		if got := ParseChargerState(tt.in); got != tt.want {
			t.Errorf("ParseChargerState(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestControlCommandWireFormat(t *testing.T) {
	payload, err := json.Marshal(ControlCommand{Command: models.ChargerStateOn, PortNumber: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"command":"ON","port_number":2}`
	if string(payload) != want {
		t.Errorf("payload = %s, want %s", payload, want)
	}
}

func TestDeviceFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
		ok    bool
	}{
		{"usage/esp32-001", "esp32-001", true},
		{"status/station-7", "station-7", true},
		{"usage/", "", false},
		{"usage", "", false},
		{"usage/a/b", "", false},
	}
	for _, tt := range tests {
		got, ok := DeviceFromTopic(tt.topic)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DeviceFromTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.ok)
		}
	}
}

func TestControlTopic(t *testing.T) {
	if got := ControlTopic("esp32-001"); got != "control/esp32-001" {
		t.Errorf("ControlTopic = %q, want control/esp32-001", got)
	}
}
