package delivery

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/thanhngodev/medigo-backend/pkg/config"
)

const earthRadiusKm = 6371.0

// Calculator quotes the delivery fee for a distance between a pharmacy and a
// delivery point.
type Calculator interface {
	Quote(pharmacyLat, pharmacyLng, deliveryLat, deliveryLng float64) decimal.Decimal
}

type calculator struct {
	baseFee  decimal.Decimal
	perKmFee decimal.Decimal
	maxFee   decimal.Decimal
}

// NewCalculator parses the fee schedule from configuration.
func NewCalculator(cfg config.DeliveryConfig) (Calculator, error) {
	baseFee, err := decimal.NewFromString(cfg.BaseFee)
	if err != nil {
		return nil, fmt.Errorf("parsing base fee %q: %w", cfg.BaseFee, err)
	}
	perKmFee, err := decimal.NewFromString(cfg.PerKmFee)
	if err != nil {
		return nil, fmt.Errorf("parsing per-km fee %q: %w", cfg.PerKmFee, err)
	}
	maxFee, err := decimal.NewFromString(cfg.MaxFee)
	if err != nil {
		return nil, fmt.Errorf("parsing max fee %q: %w", cfg.MaxFee, err)
	}
	return &calculator{baseFee: baseFee, perKmFee: perKmFee, maxFee: maxFee}, nil
}

// Quote computes base + perKm * distance, capped at the schedule maximum and
// rounded to two decimal places.
func (c *calculator) Quote(pharmacyLat, pharmacyLng, deliveryLat, deliveryLng float64) decimal.Decimal {
	km := Haversine(pharmacyLat, pharmacyLng, deliveryLat, deliveryLng)
	fee := c.baseFee.Add(c.perKmFee.Mul(decimal.NewFromFloat(km))).Round(2)
	if fee.GreaterThan(c.maxFee) {
		return c.maxFee
	}
	return fee
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
