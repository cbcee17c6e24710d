package service

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestCostWithStationTariff(t *testing.T) {
	store := newFakeStore()
	price := 0.5
	store.addStation("st-1", &price)
	calc := NewCostCalculator(store, zap.NewNop())

	if got := calc.Cost(context.Background(), "st-1", 2.0); !approx(got, 1.0) {
		t.Errorf("cost = %v, want 1.0", got)
	}
}

func TestCostFallsBackToDefaultTariff(t *testing.T) {
	store := newFakeStore()
	store.addStation("no-tariff", nil)
	zero := 0.0
	store.addStation("zero-tariff", &zero)
	calc := NewCostCalculator(store, zap.NewNop())

	if got := calc.Cost(context.Background(), "no-tariff", 2.0); !approx(got, 2.0*DefaultPricePerKWh) {
		t.Errorf("cost = %v, want %v", got, 2.0*DefaultPricePerKWh)
	}
	// A zero tariff is treated as unset, not as free charging.
	if got := calc.Cost(context.Background(), "zero-tariff", 2.0); !approx(got, 2.0*DefaultPricePerKWh) {
		t.Errorf("cost = %v, want %v", got, 2.0*DefaultPricePerKWh)
	}
}

func TestCostUnknownStation(t *testing.T) {
	store := newFakeStore()
	calc := NewCostCalculator(store, zap.NewNop())

	if got := calc.Cost(context.Background(), "ghost", 2.0); got != 0 {
		t.Errorf("cost = %v, want 0 when the tariff cannot be read", got)
	}
}

func TestCostZeroEnergy(t *testing.T) {
	store := newFakeStore()
	price := 0.5
	store.addStation("st-1", &price)
	calc := NewCostCalculator(store, zap.NewNop())

	if got := calc.Cost(context.Background(), "st-1", 0); got != 0 {
		t.Errorf("cost = %v, want 0", got)
	}
}
