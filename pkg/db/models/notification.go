package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/thanhngodev/medigo-backend/pkg/enums"
)

// Notification is a patient-scoped message produced by the event consumers.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PatientID uuid.UUID              `gorm:"column:patient_id;type:uuid;not null;index"`
	Type      enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title     string                 `gorm:"column:title;not null"`
	Body      string                 `gorm:"column:body;not null"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
