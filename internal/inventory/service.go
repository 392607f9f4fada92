package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/thanhngodev/medigo-backend/pkg/db/models"
	pkgerrors "github.com/thanhngodev/medigo-backend/pkg/errors"
)

// ItemRequest identifies a requested quantity of one medication.
type ItemRequest struct {
	MedicationID uuid.UUID
	Quantity     int
}

// Ledger exposes per-pharmacy stock operations. All methods run in the
// caller's transaction so stock changes commit together with the order
// change that caused them.
type Ledger interface {
	CheckAvailability(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []ItemRequest) (map[uuid.UUID]models.PharmacyMedication, error)
	SnapshotPrices(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, medicationIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	Deduct(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []ItemRequest) error
	Restock(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []ItemRequest) error
}

type ledger struct{}

// NewLedger exposes the default stock ledger implementation.
func NewLedger() Ledger {
	return ledger{}
}

func (ledger) CheckAvailability(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []ItemRequest) (map[uuid.UUID]models.PharmacyMedication, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for availability check")
	}
	records, err := loadRecords(ctx, tx, pharmacyID, medicationIDs(items))
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		record, ok := records[item.MedicationID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "medication not sold by pharmacy").
				WithDetails(map[string]any{"medication_id": item.MedicationID.String()})
		}
		if !record.IsAvailable || record.StockQuantity < item.Quantity {
			return nil, insufficientStock(item.MedicationID, item.Quantity, record.StockQuantity)
		}
	}
	return records, nil
}

func (ledger) SnapshotPrices(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for price snapshot")
	}
	records, err := loadRecords(ctx, tx, pharmacyID, ids)
	if err != nil {
		return nil, err
	}
	prices := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for _, id := range ids {
		record, ok := records[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "medication not sold by pharmacy").
				WithDetails(map[string]any{"medication_id": id.String()})
		}
		prices[id] = record.Price
	}
	return prices, nil
}

// Deduct commits stock for each item with a guarded UPDATE so two concurrent
// confirmations can never drive stock_quantity negative.
func (ledger) Deduct(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []ItemRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock deduction")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE pharmacy_medications
			SET stock_quantity = stock_quantity - ?,
				is_available = (stock_quantity - ?) > 0,
				updated_at = CURRENT_TIMESTAMP
			WHERE pharmacy_id = ? AND medication_id = ? AND stock_quantity >= ?
		`, item.Quantity, item.Quantity, pharmacyID, item.MedicationID, item.Quantity)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "deduct stock")
		}
		if res.RowsAffected == 0 {
			return deductFailure(ctx, tx, pharmacyID, item)
		}
	}
	return nil
}

func (ledger) Restock(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, items []ItemRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for restock")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE pharmacy_medications
			SET stock_quantity = stock_quantity + ?,
				is_available = (stock_quantity + ?) > 0,
				updated_at = CURRENT_TIMESTAMP
			WHERE pharmacy_id = ? AND medication_id = ?
		`, item.Quantity, item.Quantity, pharmacyID, item.MedicationID)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restock")
		}
	}
	return nil
}

// deductFailure distinguishes a missing inventory record from one that
// exists but is short on stock.
func deductFailure(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, item ItemRequest) error {
	var record models.PharmacyMedication
	err := tx.WithContext(ctx).
		Where("pharmacy_id = ? AND medication_id = ?", pharmacyID, item.MedicationID).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "medication not sold by pharmacy").
			WithDetails(map[string]any{"medication_id": item.MedicationID.String()})
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
	}
	return insufficientStock(item.MedicationID, item.Quantity, record.StockQuantity)
}

func insufficientStock(medicationID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"medication_id": medicationID.String(),
			"requested":     requested,
			"available":     available,
		})
}

func loadRecords(ctx context.Context, tx *gorm.DB, pharmacyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.PharmacyMedication, error) {
	var rows []models.PharmacyMedication
	err := tx.WithContext(ctx).
		Where("pharmacy_id = ? AND medication_id IN ?", pharmacyID, ids).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory records")
	}
	records := make(map[uuid.UUID]models.PharmacyMedication, len(rows))
	for _, row := range rows {
		records[row.MedicationID] = row
	}
	return records, nil
}

func medicationIDs(items []ItemRequest) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.MedicationID)
	}
	return ids
}
