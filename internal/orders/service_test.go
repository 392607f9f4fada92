package orders

import (
	"context"
	"testing"
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
)

type statusUpdate struct {
	from        enums.OrderStatus
	to          enums.OrderStatus
	confirmedAt *time.Time
	deliveredAt *time.Time
}

type stubOrdersRepo struct {
	orders         map[uuid.UUID]*models.Order
	created        *models.Order
	updates        []statusUpdate
	updateConflict bool
	updateErr      error
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	s.created = order
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := s.orders[id]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := s.orders[id]; ok {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubOrdersRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Order, error) {
	out := []models.Order{}
	for _, order := range s.orders {
		if order.PatientID == patientID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *stubOrdersRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, confirmedAt, deliveredAt *time.Time) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	if s.updateConflict {
		return false, nil
	}
	s.updates = append(s.updates, statusUpdate{from: from, to: to, confirmedAt: confirmedAt, deliveredAt: deliveredAt})
	return true, nil
}

type stubLedger struct {
	records   map[uuid.UUID]models.PharmacyMedication
	checkErr  error
	deductErr error
	deducts   [][]inventory.ItemRequest
	restocks  [][]inventory.ItemRequest
}

func (s *stubLedger) CheckAvailability(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []inventory.ItemRequest) (map[uuid.UUID]models.PharmacyMedication, error) {
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return s.records, nil
}

func (s *stubLedger) SnapshotPrices(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	prices := map[uuid.UUID]decimal.Decimal{}
	for id, record := range s.records {
		prices[id] = record.Price
	}
	return prices, nil
}

func (s *stubLedger) Deduct(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []inventory.ItemRequest) error {
	if s.deductErr != nil {
		return s.deductErr
	}
	s.deducts = append(s.deducts, items)
	return nil
}

func (s *stubLedger) Restock(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []inventory.ItemRequest) error {
	s.restocks = append(s.restocks, items)
	return nil
}

type stubPatientsRepo struct {
	patient *models.Patient
}

func (s *stubPatientsRepo) WithTx(tx *gorm.DB) patients.Repository { return s }

func (s *stubPatientsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	if s.patient != nil && s.patient.ID == id {
		return s.patient, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubPharmaciesRepo struct {
	pharmacy *models.Pharmacy
}

func (s *stubPharmaciesRepo) WithTx(tx *gorm.DB) pharmacies.Repository { return s }

func (s *stubPharmaciesRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	if s.pharmacy != nil && s.pharmacy.ID == id {
		return s.pharmacy, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPharmaciesRepo) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Pharmacy, error) {
	if s.pharmacy != nil && s.pharmacy.ID == id && s.pharmacy.IsActive {
		return s.pharmacy, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubFeeQuoter struct {
	fee decimal.Decimal
}

func (s stubFeeQuoter) Quote(pharmacyLat, pharmacyLng, deliveryLat, deliveryLng float64) decimal.Decimal {
	return s.fee
}

type stubOutboxPublisher struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubOutboxPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	repo       *stubOrdersRepo
	ledger     *stubLedger
	patients   *stubPatientsRepo
	pharmacies *stubPharmaciesRepo
	outbox     *stubOutboxPublisher
	svc        Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       &stubOrdersRepo{orders: map[uuid.UUID]*models.Order{}},
		ledger:     &stubLedger{records: map[uuid.UUID]models.PharmacyMedication{}},
		patients:   &stubPatientsRepo{},
		pharmacies: &stubPharmaciesRepo{},
		outbox:     &stubOutboxPublisher{},
	}
	svc, err := NewService(f.repo, f.patients, f.pharmacies, f.ledger, stubFeeQuoter{fee: decimal.RequireFromString("500")}, stubTxRunner{}, f.outbox)
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	f.svc = svc
	return f
}

func validCreateInput(patientID, pharmacyID, medA, medB uuid.UUID) CreateOrderInput {
	return CreateOrderInput{
		PatientID:  patientID,
		PharmacyID: pharmacyID,
		Items: []CreateOrderItemInput{
			{MedicationID: medA, Quantity: 2},
			{MedicationID: medB, Quantity: 1},
		},
		DeliveryAddress:   "12 Tran Hung Dao",
		DeliveryPhone:     "+84900000001",
		DeliveryLatitude:  21.0278,
		DeliveryLongitude: 105.8342,
	}
}

func TestCreateOrderSnapshotsPrices(t *testing.T) {
	f := newFixture(t)
	patientID := uuid.New()
	pharmacyID := uuid.New()
	medA := uuid.New()
	medB := uuid.New()

	f.patients.patient = &models.Patient{ID: patientID}
	f.pharmacies.pharmacy = &models.Pharmacy{ID: pharmacyID, IsActive: true, Latitude: 21.03, Longitude: 105.83}
	f.ledger.records = map[uuid.UUID]models.PharmacyMedication{
		medA: {MedicationID: medA, Price: decimal.RequireFromString("12.50"), StockQuantity: 10},
		medB: {MedicationID: medB, Price: decimal.RequireFromString("3.00"), StockQuantity: 5},
	}

	order, err := f.svc.Create(context.Background(), validCreateInput(patientID, pharmacyID, medA, medB))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if order.Status != enums.OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", order.Status)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("28.00")) {
		t.Fatalf("expected total 28.00, got %s", order.TotalAmount)
	}
	if !order.DeliveryFee.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("expected delivery fee 500, got %s", order.DeliveryFee)
	}
	if order.OrderNumber == "" {
		t.Fatal("expected generated order number")
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	for _, item := range order.Items {
		if !item.Subtotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))) {
			t.Fatalf("subtotal mismatch on item %s", item.MedicationID)
		}
	}
	if len(f.ledger.deducts) != 0 {
		t.Fatal("creation must not deduct stock")
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOrderCreated {
		t.Fatalf("expected order_created event, got %+v", f.outbox.events)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newFixture(t)
	patientID := uuid.New()
	pharmacyID := uuid.New()
	med := uuid.New()

	f.patients.patient = &models.Patient{ID: patientID}
	f.pharmacies.pharmacy = &models.Pharmacy{ID: pharmacyID, IsActive: true}
	f.ledger.checkErr = pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")

	_, err := f.svc.Create(context.Background(), validCreateInput(patientID, pharmacyID, med, uuid.New()))
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if f.repo.created != nil {
		t.Fatal("no order should be persisted")
	}
	if len(f.outbox.events) != 0 {
		t.Fatal("no event should be emitted")
	}
}

func TestCreateOrderUnknownPatient(t *testing.T) {
	f := newFixture(t)
	pharmacyID := uuid.New()
	f.pharmacies.pharmacy = &models.Pharmacy{ID: pharmacyID, IsActive: true}

	_, err := f.svc.Create(context.Background(), validCreateInput(uuid.New(), pharmacyID, uuid.New(), uuid.New()))
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateOrderDuplicateMedication(t *testing.T) {
	f := newFixture(t)
	med := uuid.New()
	input := validCreateInput(uuid.New(), uuid.New(), med, med)

	_, err := f.svc.Create(context.Background(), input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	f := newFixture(t)
	input := validCreateInput(uuid.New(), uuid.New(), uuid.New(), uuid.New())
	input.Items = nil

	_, err := f.svc.Create(context.Background(), input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func pendingOrder(patientID uuid.UUID) *models.Order {
	orderID := uuid.New()
	return &models.Order{
		ID:          orderID,
		OrderNumber: "MG-20250901-TEST0001",
		PatientID:   patientID,
		PharmacyID:  uuid.New(),
		Status:      enums.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("28.00"),
		Items: []models.OrderItem{
			{ID: uuid.New(), OrderID: orderID, MedicationID: uuid.New(), Quantity: 2},
		},
	}
}

func TestTransitionConfirmDeductsStock(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	f.repo.orders[order.ID] = order

	err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusConfirmed, nil)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if len(f.ledger.deducts) != 1 {
		t.Fatalf("expected one deduction, got %d", len(f.ledger.deducts))
	}
	if len(f.repo.updates) != 1 {
		t.Fatalf("expected one status update, got %d", len(f.repo.updates))
	}
	update := f.repo.updates[0]
	if update.from != enums.OrderStatusPending || update.to != enums.OrderStatusConfirmed {
		t.Fatalf("unexpected update %+v", update)
	}
	if update.confirmedAt == nil {
		t.Fatal("confirmedAt should be set on first confirmation")
	}
	if order.Status != enums.OrderStatusConfirmed {
		t.Fatalf("order status not applied: %s", order.Status)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOrderStatusChanged {
		t.Fatalf("expected status changed event, got %+v", f.outbox.events)
	}
}

func TestTransitionPaidThenConfirmedDeductsOnce(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	f.repo.orders[order.ID] = order

	if err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusPaid, nil); err != nil {
		t.Fatalf("paid transition failed: %v", err)
	}
	if len(f.ledger.deducts) != 1 {
		t.Fatalf("expected one deduction after PAID, got %d", len(f.ledger.deducts))
	}
	if order.ConfirmedAt == nil {
		t.Fatal("confirmedAt should be set when the order is paid")
	}

	if err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusConfirmed, nil); err != nil {
		t.Fatalf("confirm transition failed: %v", err)
	}
	if len(f.ledger.deducts) != 1 {
		t.Fatalf("PAID -> CONFIRMED must not deduct again, got %d deductions", len(f.ledger.deducts))
	}
	if f.repo.updates[1].confirmedAt != nil {
		t.Fatal("confirmedAt must not be overwritten")
	}
}

func TestTransitionDisallowedEdge(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	f.repo.orders[order.ID] = order

	err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusDelivered, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("status must stay PENDING, got %s", order.Status)
	}
	if len(f.repo.updates) != 0 {
		t.Fatal("no update should happen")
	}
}

func TestTransitionSameStateIsNoop(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	f.repo.orders[order.ID] = order

	if err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusPending, nil); err != nil {
		t.Fatalf("same-state transition should be a no-op: %v", err)
	}
	if len(f.repo.updates) != 0 || len(f.outbox.events) != 0 {
		t.Fatal("no-op transition must not write or emit")
	}
}

func TestTransitionDeliveredSetsTimestamp(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	order.Status = enums.OrderStatusInDelivery
	now := time.Now()
	order.ConfirmedAt = &now
	f.repo.orders[order.ID] = order

	if err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusDelivered, nil); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if f.repo.updates[0].deliveredAt == nil {
		t.Fatal("deliveredAt should be set")
	}
	if order.DeliveredAt == nil {
		t.Fatal("deliveredAt should be applied to the loaded order")
	}
}

func TestTransitionCancelRestocksCommittedOrder(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	order.Status = enums.OrderStatusConfirmed
	now := time.Now()
	order.ConfirmedAt = &now
	f.repo.orders[order.ID] = order

	if err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusCancelled, nil); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(f.ledger.restocks) != 1 {
		t.Fatalf("expected one restock, got %d", len(f.ledger.restocks))
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOrderCancelled {
		t.Fatalf("expected order_cancelled event, got %+v", f.outbox.events)
	}
}

func TestTransitionCancelPendingDoesNotRestock(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	f.repo.orders[order.ID] = order

	if err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusCancelled, nil); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(f.ledger.restocks) != 0 {
		t.Fatal("pending orders hold no stock to return")
	}
}

func TestTransitionConcurrentWriterLoses(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	f.repo.orders[order.ID] = order
	f.repo.updateConflict = true

	err := f.svc.Transition(context.Background(), order.ID, enums.OrderStatusConfirmed, nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	order := pendingOrder(uuid.New())
	f.repo.orders[order.ID] = order

	if _, err := f.svc.Get(context.Background(), order.PatientID, order.ID); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	_, err := f.svc.Get(context.Background(), uuid.New(), order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
