package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thanhngodev/medigo-backend/pkg/enums"
	pkgerrors "github.com/thanhngodev/medigo-backend/pkg/errors"
)

// ChargeRequest describes one charge against the payment provider. A single
// settlement call produces a single charge for the whole batch.
type ChargeRequest struct {
	TransactionID string
	PatientID     uuid.UUID
	Method        enums.PaymentMethod
	Amount        decimal.Decimal
}

// Charger performs the charge. The settlement flow calls it before any
// Payment row is written so a declined charge leaves no trace.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) error
}

type localCharger struct{}

// NewLocalCharger returns a charger that approves every positive charge.
// Used in development and as the cash-on-delivery path.
func NewLocalCharger() Charger {
	return localCharger{}
}

func (localCharger) Charge(ctx context.Context, req ChargeRequest) error {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	return nil
}
