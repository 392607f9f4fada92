package payments

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/thanhngodev/medigo-backend/internal/delivery"
	"github.com/thanhngodev/medigo-backend/internal/inventory"
	"github.com/thanhngodev/medigo-backend/internal/orders"
	"github.com/thanhngodev/medigo-backend/internal/patients"
	"github.com/thanhngodev/medigo-backend/internal/pharmacies"
	"github.com/thanhngodev/medigo-backend/pkg/config"
	"github.com/thanhngodev/medigo-backend/pkg/db"
	"github.com/thanhngodev/medigo-backend/pkg/db/models"
	"github.com/thanhngodev/medigo-backend/pkg/enums"
	pkgerrors "github.com/thanhngodev/medigo-backend/pkg/errors"
	"github.com/thanhngodev/medigo-backend/pkg/outbox"
)

// These tests run Settle against a real database transaction so a mid-batch
// failure must undo everything the earlier orders in the batch wrote.

func setupSettlementTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:settlement_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  patient_id TEXT NOT NULL,
  pharmacy_id TEXT NOT NULL,
  total_amount NUMERIC NOT NULL,
  delivery_fee NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  delivery_address TEXT NOT NULL,
  delivery_phone TEXT NOT NULL,
  delivery_latitude REAL NOT NULL,
  delivery_longitude REAL NOT NULL,
  confirmed_at DATETIME,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  medication_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  subtotal NUMERIC NOT NULL,
  created_at DATETIME,
  UNIQUE (order_id, medication_id)
);`, `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  transaction_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  method TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS pharmacy_medications (
  id TEXT PRIMARY KEY,
  pharmacy_id TEXT NOT NULL,
  medication_id TEXT NOT NULL,
  price NUMERIC NOT NULL,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  is_available INTEGER NOT NULL DEFAULT 1,
  expiry_date DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (pharmacy_id, medication_id)
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func newSettlementFixture(t *testing.T) (*gorm.DB, Service) {
	t.Helper()

	conn := setupSettlementTestDB(t)
	client := db.NewWithConn(conn)

	calculator, err := delivery.NewCalculator(config.DeliveryConfig{
		BaseFee:  "500",
		PerKmFee: "200",
		MaxFee:   "5000",
	})
	require.NoError(t, err)

	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)

	ordersSvc, err := orders.NewService(
		orders.NewRepository(conn),
		patients.NewRepository(conn),
		pharmacies.NewRepository(conn),
		inventory.NewLedger(),
		calculator,
		client,
		outboxSvc,
	)
	require.NoError(t, err)

	svc, err := NewService(
		NewRepository(conn),
		orders.NewRepository(conn),
		ordersSvc,
		NewLocalCharger(),
		NewTextReceiptGenerator(),
		client,
		outboxSvc,
	)
	require.NoError(t, err)
	return conn, svc
}

func seedSettlementStock(t *testing.T, conn *gorm.DB, pharmacyID, medicationID uuid.UUID, stock int) {
	t.Helper()
	record := models.PharmacyMedication{
		ID:            uuid.New(),
		PharmacyID:    pharmacyID,
		MedicationID:  medicationID,
		Price:         decimal.RequireFromString("12.50"),
		StockQuantity: stock,
		IsAvailable:   stock > 0,
	}
	require.NoError(t, conn.Create(&record).Error)
}

func seedSettlementOrder(t *testing.T, conn *gorm.DB, patientID, pharmacyID, medicationID uuid.UUID, qty int) *models.Order {
	t.Helper()
	orderID := uuid.New()
	unitPrice := decimal.RequireFromString("12.50")
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(qty)))
	order := &models.Order{
		ID:                orderID,
		OrderNumber:       "MG-20260901-" + strings.ToUpper(uuid.NewString()[:8]),
		PatientID:         patientID,
		PharmacyID:        pharmacyID,
		TotalAmount:       subtotal,
		DeliveryFee:       decimal.RequireFromString("500"),
		Status:            enums.OrderStatusPending,
		DeliveryAddress:   "12 Tran Hung Dao",
		DeliveryPhone:     "+84900000001",
		DeliveryLatitude:  21.0278,
		DeliveryLongitude: 105.8342,
		Items: []models.OrderItem{
			{
				ID:           uuid.New(),
				OrderID:      orderID,
				MedicationID: medicationID,
				Quantity:     qty,
				UnitPrice:    unitPrice,
				Subtotal:     subtotal,
			},
		},
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func TestSettleRollsBackBatchWhenDeductFails(t *testing.T) {
	t.Parallel()

	conn, svc := newSettlementFixture(t)
	ctx := context.Background()

	patientID := uuid.New()
	pharmacyID := uuid.New()
	medicationID := uuid.New()
	seedSettlementStock(t, conn, pharmacyID, medicationID, 5)

	// combined demand exceeds stock, so whichever order settles first
	// deducts and the second one fails mid-batch
	orderA := seedSettlementOrder(t, conn, patientID, pharmacyID, medicationID, 3)
	orderB := seedSettlementOrder(t, conn, patientID, pharmacyID, medicationID, 3)

	_, err := svc.Settle(ctx, SettleInput{
		PatientID: patientID,
		OrderIDs:  []uuid.UUID{orderA.ID, orderB.ID},
		Method:    enums.PaymentMethodCard,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))

	var paymentCount int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&paymentCount).Error)
	assert.Zero(t, paymentCount, "rolled-back settlement must leave no payment rows")

	for _, id := range []uuid.UUID{orderA.ID, orderB.ID} {
		var reloaded models.Order
		require.NoError(t, conn.Where("id = ?", id).First(&reloaded).Error)
		assert.Equal(t, enums.OrderStatusPending, reloaded.Status)
		assert.Nil(t, reloaded.ConfirmedAt)
	}

	var record models.PharmacyMedication
	require.NoError(t, conn.Where("pharmacy_id = ? AND medication_id = ?", pharmacyID, medicationID).First(&record).Error)
	assert.Equal(t, 5, record.StockQuantity, "deduction from the first order must be undone")
	assert.True(t, record.IsAvailable)

	var eventCount int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount, "outbox rows must roll back with the settlement")
}

func TestSettleCommitsBatchAgainstDatabase(t *testing.T) {
	t.Parallel()

	conn, svc := newSettlementFixture(t)
	ctx := context.Background()

	patientID := uuid.New()
	pharmacyID := uuid.New()
	medicationID := uuid.New()
	seedSettlementStock(t, conn, pharmacyID, medicationID, 5)

	orderA := seedSettlementOrder(t, conn, patientID, pharmacyID, medicationID, 2)
	orderB := seedSettlementOrder(t, conn, patientID, pharmacyID, medicationID, 2)

	result, err := svc.Settle(ctx, SettleInput{
		PatientID: patientID,
		OrderIDs:  []uuid.UUID{orderA.ID, orderB.ID},
		Method:    enums.PaymentMethodCard,
	})
	require.NoError(t, err)
	require.Len(t, result.Payments, 2)

	var payments []models.Payment
	require.NoError(t, conn.Find(&payments).Error)
	require.Len(t, payments, 2)
	for _, payment := range payments {
		assert.Equal(t, result.TransactionID, payment.TransactionID)
		assert.Equal(t, enums.PaymentStatusSuccess, payment.Status)
	}

	for _, id := range []uuid.UUID{orderA.ID, orderB.ID} {
		var reloaded models.Order
		require.NoError(t, conn.Where("id = ?", id).First(&reloaded).Error)
		assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
		assert.NotNil(t, reloaded.ConfirmedAt)
	}

	var record models.PharmacyMedication
	require.NoError(t, conn.Where("pharmacy_id = ? AND medication_id = ?", pharmacyID, medicationID).First(&record).Error)
	assert.Equal(t, 1, record.StockQuantity)
	assert.True(t, record.IsAvailable)

	// one status change plus one payment_settled per order
	var eventCount int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&eventCount).Error)
	assert.EqualValues(t, 4, eventCount)
}
