package delivery

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/thanhngodev/medigo-backend/pkg/config"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Hanoi city center to Noi Bai airport, roughly 22 km
	km := Haversine(21.0278, 105.8342, 21.2187, 105.8042)
	if math.Abs(km-21.5) > 1.5 {
		t.Fatalf("unexpected distance %.2f km", km)
	}
}

func TestHaversineZeroDistance(t *testing.T) {
	if km := Haversine(10.5, 106.7, 10.5, 106.7); km != 0 {
		t.Fatalf("expected zero distance, got %f", km)
	}
}

func TestQuoteAppliesSchedule(t *testing.T) {
	calc, err := NewCalculator(config.DeliveryConfig{BaseFee: "500", PerKmFee: "200", MaxFee: "5000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// zero distance pays the base fee only
	fee := calc.Quote(21.0278, 105.8342, 21.0278, 105.8342)
	if !fee.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("expected base fee, got %s", fee)
	}

	// a long haul is capped at the maximum
	fee = calc.Quote(21.0278, 105.8342, 10.7769, 106.7009)
	if !fee.Equal(decimal.RequireFromString("5000")) {
		t.Fatalf("expected capped fee, got %s", fee)
	}
}

func TestNewCalculatorRejectsBadSchedule(t *testing.T) {
	if _, err := NewCalculator(config.DeliveryConfig{BaseFee: "abc", PerKmFee: "200", MaxFee: "5000"}); err == nil {
		t.Fatal("expected error for invalid base fee")
	}
}
