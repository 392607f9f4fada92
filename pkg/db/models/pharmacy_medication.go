package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PharmacyMedication is the per-pharmacy inventory record. StockQuantity is
// the single source of truth for availability.
type PharmacyMedication struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PharmacyID    uuid.UUID       `gorm:"column:pharmacy_id;type:uuid;not null;uniqueIndex:ux_pharmacy_medication"`
	MedicationID  uuid.UUID       `gorm:"column:medication_id;type:uuid;not null;uniqueIndex:ux_pharmacy_medication"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0"`
	IsAvailable   bool            `gorm:"column:is_available;not null;default:true"`
	ExpiryDate    *time.Time      `gorm:"column:expiry_date"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
