package service

import "math"

// Accounting constants for the fixed telemetry cadence.
const (
	// SampleIntervalSeconds is the publish cadence devices hold.
	SampleIntervalSeconds = 10.0
	// NominalVoltage converts wattage to current for charge accounting.
	NominalVoltage = 12.0
	// MaxConsumptionWatts caps a single reading.
	MaxConsumptionWatts = 10000.0
)

// ValidateConsumption clamps a raw reading into the accepted range. Missing,
// non-numeric and negative readings become 0; readings above the ceiling
// become the ceiling.
func ValidateConsumption(watts float64) float64 {
	if math.IsNaN(watts) || watts < 0 {
		return 0
	}
	if watts > MaxConsumptionWatts {
		return MaxConsumptionWatts
	}
	return watts
}

// EnergyIncrementKWh is one validated sample's contribution to cumulative
// energy.
func EnergyIncrementKWh(watts float64) float64 {
	return watts * SampleIntervalSeconds / 3600000
}

// ChargeIncrementMAh is one validated sample's contribution to transferred
// charge at the nominal system voltage.
func ChargeIncrementMAh(watts float64) float64 {
	return watts / NominalVoltage * 1000 * SampleIntervalSeconds / 3600
}
