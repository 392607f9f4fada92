package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thanhngodev/medigo-backend/pkg/enums"
)

// Order represents a patient order against a single pharmacy. TotalAmount is
// the sum of item subtotals; the delivery fee is tracked separately.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string            `gorm:"column:order_number;not null;uniqueIndex"`
	PatientID         uuid.UUID         `gorm:"column:patient_id;type:uuid;not null"`
	PharmacyID        uuid.UUID         `gorm:"column:pharmacy_id;type:uuid;not null"`
	TotalAmount       decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	DeliveryFee       decimal.Decimal   `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'PENDING'"`
	DeliveryAddress   string            `gorm:"column:delivery_address;not null"`
	DeliveryPhone     string            `gorm:"column:delivery_phone;not null"`
	DeliveryLatitude  float64           `gorm:"column:delivery_latitude;not null"`
	DeliveryLongitude float64           `gorm:"column:delivery_longitude;not null"`
	ConfirmedAt       *time.Time        `gorm:"column:confirmed_at"`
	DeliveredAt       *time.Time        `gorm:"column:delivered_at"`
	Items             []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
