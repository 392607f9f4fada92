package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/thanhngodev/medigo-backend/internal/inventory"
	"github.com/thanhngodev/medigo-backend/internal/patients"
	"github.com/thanhngodev/medigo-backend/internal/pharmacies"
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

// FeeQuoter prices the delivery leg of a new order.
type FeeQuoter interface {
	Quote(pharmacyLat, pharmacyLng, deliveryLat, deliveryLng float64) decimal.Decimal
}

// Service drives the order lifecycle: creation with price snapshotting and
// validated status transitions with edge-attached stock effects.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, patientID, orderID uuid.UUID) (*models.Order, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor *outbox.ActorRef) error
	TransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus, actor *outbox.ActorRef) error
}

type service struct {
	repo       Repository
	patients   patients.Repository
	pharmacies pharmacies.Repository
	ledger     inventory.Ledger
	fees       FeeQuoter
	tx         txRunner
	outbox     outboxPublisher
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, patientsRepo patients.Repository, pharmaciesRepo pharmacies.Repository, ledger inventory.Ledger, fees FeeQuoter, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if patientsRepo == nil {
		return nil, fmt.Errorf("patients repository required")
	}
	if pharmaciesRepo == nil {
		return nil, fmt.Errorf("pharmacies repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if fees == nil {
		return nil, fmt.Errorf("fee quoter required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:       repo,
		patients:   patientsRepo,
		pharmacies: pharmaciesRepo,
		ledger:     ledger,
		fees:       fees,
		tx:         tx,
		outbox:     outboxSvc,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	requests := make([]inventory.ItemRequest, 0, len(input.Items))
	for _, item := range input.Items {
		if _, dup := seen[item.MedicationID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate medication in order").
				WithDetails(map[string]any{"medication_id": item.MedicationID.String()})
		}
		seen[item.MedicationID] = struct{}{}
		requests = append(requests, inventory.ItemRequest{MedicationID: item.MedicationID, Quantity: item.Quantity})
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.patients.WithTx(tx).FindByID(ctx, input.PatientID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "patient not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load patient")
		}

		pharmacy, err := s.pharmacies.WithTx(tx).FindActiveByID(ctx, input.PharmacyID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "pharmacy not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pharmacy")
		}

		// Stock is checked but not reserved; deduction happens on the
		// paid/confirmed edge.
		records, err := s.ledger.CheckAvailability(ctx, tx, input.PharmacyID, requests)
		if err != nil {
			return err
		}

		orderID := uuid.New()
		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(input.Items))
		for _, item := range input.Items {
			price := records[item.MedicationID].Price
			subtotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			items = append(items, models.OrderItem{
				ID:           uuid.New(),
				OrderID:      orderID,
				MedicationID: item.MedicationID,
				Quantity:     item.Quantity,
				UnitPrice:    price,
				Subtotal:     subtotal,
			})
			total = total.Add(subtotal)
		}

		fee := s.fees.Quote(pharmacy.Latitude, pharmacy.Longitude, input.DeliveryLatitude, input.DeliveryLongitude)

		order := &models.Order{
			ID:                orderID,
			OrderNumber:       generateOrderNumber(),
			PatientID:         input.PatientID,
			PharmacyID:        input.PharmacyID,
			TotalAmount:       total,
			DeliveryFee:       fee,
			Status:            enums.OrderStatusPending,
			DeliveryAddress:   input.DeliveryAddress,
			DeliveryPhone:     input.DeliveryPhone,
			DeliveryLatitude:  input.DeliveryLatitude,
			DeliveryLongitude: input.DeliveryLongitude,
			Items:             items,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         patientActor(input.PatientID),
			Data: OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				PatientID:   order.PatientID,
				PharmacyID:  order.PharmacyID,
				TotalAmount: order.TotalAmount.StringFixed(2),
				DeliveryFee: order.DeliveryFee.StringFixed(2),
				ItemCount:   len(order.Items),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, patientID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.PatientID != patientID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to patient")
	}
	return order, nil
}

func (s *service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Order, error) {
	if patientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patient id required")
	}
	orders, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

func (s *service) Transition(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor *outbox.ActorRef) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return s.TransitionTx(ctx, tx, order, next, actor)
	})
}

// TransitionTx applies a validated transition inside the caller's
// transaction. Stock deduction and restock ride on specific edges so they
// run exactly once per order no matter how the caller reached this point.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus, actor *outbox.ActorRef) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	from := order.Status
	if from == next {
		return nil
	}
	if !from.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
			WithDetails(map[string]any{"from": from.String(), "to": next.String()})
	}

	if enums.TransitionDeductsStock(from, next) {
		if err := s.ledger.Deduct(ctx, tx, order.PharmacyID, itemRequests(order.Items)); err != nil {
			return err
		}
	}
	if next == enums.OrderStatusCancelled && from.StockCommitted() {
		if err := s.ledger.Restock(ctx, tx, order.PharmacyID, itemRequests(order.Items)); err != nil {
			return err
		}
	}

	now := time.Now()
	var confirmedAt, deliveredAt *time.Time
	if order.ConfirmedAt == nil && (next == enums.OrderStatusPaid || next == enums.OrderStatusConfirmed) {
		confirmedAt = &now
	}
	if next == enums.OrderStatusDelivered {
		deliveredAt = &now
	}

	updated, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, from, next, confirmedAt, deliveredAt)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}

	order.Status = next
	if confirmedAt != nil {
		order.ConfirmedAt = confirmedAt
	}
	if deliveredAt != nil {
		order.DeliveredAt = deliveredAt
	}

	eventType := enums.EventOrderStatusChanged
	if next == enums.OrderStatusCancelled {
		eventType = enums.EventOrderCancelled
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			PatientID:   order.PatientID,
			PharmacyID:  order.PharmacyID,
			From:        from,
			To:          next,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}

func itemRequests(items []models.OrderItem) []inventory.ItemRequest {
	requests := make([]inventory.ItemRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, inventory.ItemRequest{
			MedicationID: item.MedicationID,
			Quantity:     item.Quantity,
		})
	}
	return requests
}

func patientActor(patientID uuid.UUID) *outbox.ActorRef {
	id := patientID
	return &outbox.ActorRef{PatientID: &id, Role: "patient"}
}

func generateOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("MG-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}
