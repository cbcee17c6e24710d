package service

import (
	"context"

	"go.uber.org/zap"
)

// DefaultPricePerKWh applies when a station has no configured tariff.
const DefaultPricePerKWh = 0.25

// CostCalculator prices accumulated energy from the owning station's tariff.
type CostCalculator struct {
	stations StationStore
	logger   *zap.Logger
}

// NewCostCalculator returns calculator.
func NewCostCalculator(stations StationStore, logger *zap.Logger) *CostCalculator {
	return &CostCalculator{stations: stations, logger: logger}
}

// Cost returns the monetary cost of the energy drawn from a station. Pricing
// is best-effort: an unresolvable station is reported and priced at 0 so the
// closing transition is never blocked.
func (c *CostCalculator) Cost(ctx context.Context, stationID string, energyKWh float64) float64 {
	price, err := c.stations.PricePerKWh(ctx, stationID)
	if err != nil {
		c.logger.Error("station price lookup failed",
			zap.String("station_id", stationID),
			zap.Error(err),
		)
		return 0
	}
	rate := DefaultPricePerKWh
	if price != nil && *price > 0 {
		rate = *price
	}
	return energyKWh * rate
}
