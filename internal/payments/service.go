package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/thanhngodev/medigo-backend/internal/orders"
	"github.com/thanhngodev/medigo-backend/pkg/db/models"
	"github.com/thanhngodev/medigo-backend/pkg/enums"
	pkgerrors "github.com/thanhngodev/medigo-backend/pkg/errors"
	"github.com/thanhngodev/medigo-backend/pkg/outbox"
	"github.com/thanhngodev/medigo-backend/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderTransitioner is the slice of the order service the settlement flow
// needs: applying a validated transition inside its own transaction.
type orderTransitioner interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus, actor *outbox.ActorRef) error
}

// ReceiptGenerator renders a receipt document for a successful payment.
type ReceiptGenerator interface {
	GenerateReceipt(ctx context.Context, payment *models.Payment, order *models.Order) ([]byte, error)
}

// SettleInput is one settlement request covering a batch of orders.
type SettleInput struct {
	PatientID uuid.UUID           `json:"patient_id" validate:"required"`
	OrderIDs  []uuid.UUID         `json:"order_ids" validate:"required,min=1"`
	Method    enums.PaymentMethod `json:"method" validate:"required"`
}

// SettlementResult reports what one settlement call produced.
type SettlementResult struct {
	TransactionID string
	Payments      []models.Payment
}

// PaymentSettledEvent is emitted per order when a settlement commits.
type PaymentSettledEvent struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	PatientID     uuid.UUID `json:"patient_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	Method        string    `json:"method"`
}

// Service settles batches of orders atomically: either every order in the
// batch is paid and transitioned, or none are.
type Service interface {
	Settle(ctx context.Context, input SettleInput) (*SettlementResult, error)
	Receipt(ctx context.Context, patientID, paymentID uuid.UUID) ([]byte, error)
}

type service struct {
	repo       Repository
	orders     orders.Repository
	transition orderTransitioner
	charger    Charger
	receipts   ReceiptGenerator
	tx         txRunner
	outbox     outboxPublisher
}

// NewService builds a payment settlement service.
func NewService(repo Repository, ordersRepo orders.Repository, transition orderTransitioner, charger Charger, receipts ReceiptGenerator, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if transition == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if charger == nil {
		return nil, fmt.Errorf("charger required")
	}
	if receipts == nil {
		return nil, fmt.Errorf("receipt generator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:       repo,
		orders:     ordersRepo,
		transition: transition,
		charger:    charger,
		receipts:   receipts,
		tx:         tx,
		outbox:     outboxSvc,
	}, nil
}

func (s *service) Settle(ctx context.Context, input SettleInput) (*SettlementResult, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.OrderIDs))
	for _, id := range input.OrderIDs {
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate order in settlement").
				WithDetails(map[string]any{"order_id": id.String()})
		}
		seen[id] = struct{}{}
	}

	transactionID := "TXN-" + uuid.NewString()
	result := &SettlementResult{TransactionID: transactionID}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		paymentsRepo := s.repo.WithTx(tx)

		batch, err := ordersRepo.FindByIDs(ctx, input.OrderIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
		}
		if len(batch) != len(input.OrderIDs) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "one or more orders not found")
		}

		// validate the whole batch before touching anything
		total := decimal.Zero
		for i := range batch {
			order := &batch[i]
			if order.PatientID != input.PatientID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to patient").
					WithDetails(map[string]any{"order_id": order.ID.String()})
			}
			if order.Status == enums.OrderStatusPaid || order.Status == enums.OrderStatusDelivered {
				return duplicatePayment(order.ID)
			}
			if _, err := paymentsRepo.FindActiveByOrder(ctx, order.ID); err == nil {
				return duplicatePayment(order.ID)
			} else if err != gorm.ErrRecordNotFound {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing payment")
			}
			total = total.Add(order.TotalAmount)
		}

		// one charge for the batch; a decline rolls everything back with
		// no Payment rows written
		charge := ChargeRequest{
			TransactionID: transactionID,
			PatientID:     input.PatientID,
			Method:        input.Method,
			Amount:        total,
		}
		if err := s.charger.Charge(ctx, charge); err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "charge failed")
		}

		now := time.Now()
		actor := &outbox.ActorRef{PatientID: &input.PatientID, Role: "patient"}
		for i := range batch {
			order := &batch[i]
			payment := &models.Payment{
				ID:            uuid.New(),
				OrderID:       order.ID,
				TransactionID: transactionID,
				Amount:        order.TotalAmount,
				Method:        input.Method,
				Status:        enums.PaymentStatusSuccess,
				PaidAt:        &now,
			}
			if err := paymentsRepo.Create(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
			}

			if err := s.transition.TransitionTx(ctx, tx, order, enums.OrderStatusPaid, actor); err != nil {
				return err
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventPaymentSettled,
				AggregateType: enums.AggregatePayment,
				AggregateID:   payment.ID,
				Actor:         actor,
				Data: PaymentSettledEvent{
					PaymentID:     payment.ID,
					OrderID:       order.ID,
					OrderNumber:   order.OrderNumber,
					PatientID:     order.PatientID,
					TransactionID: transactionID,
					Amount:        payment.Amount.StringFixed(2),
					Method:        payment.Method.String(),
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
			result.Payments = append(result.Payments, *payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Receipt(ctx context.Context, patientID, paymentID uuid.UUID) ([]byte, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for receipt")
	}
	if order.PatientID != patientID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment does not belong to patient")
	}
	if payment.Status != enums.PaymentStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "receipt requires a successful payment").
			WithDetails(map[string]any{"status": payment.Status.String()})
	}
	return s.receipts.GenerateReceipt(ctx, payment, order)
}

func duplicatePayment(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeDuplicatePayment, "order already paid").
		WithDetails(map[string]any{"order_id": orderID.String()})
}
