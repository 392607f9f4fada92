package models

import (
	"time"

	"github.com/google/uuid"
)

// Medication is a catalog entry shared across pharmacies.
type Medication struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                 string    `gorm:"column:name;not null"`
	GenericName          *string   `gorm:"column:generic_name"`
	Description          *string   `gorm:"column:description"`
	RequiresPrescription bool      `gorm:"column:requires_prescription;not null;default:false"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
