package idempotency

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/thanhngodev/medigo-backend/pkg/db"
	"github.com/thanhngodev/medigo-backend/pkg/db/models"
)

// Manager records processed event IDs per consumer so redelivered messages
// are dropped. Backed by the processed_events table; the insert rides on the
// same connection as the consumer's side effects.
type Manager struct {
	db *gorm.DB
}

// NewManager builds an idempotency manager bound to the provided DB.
func NewManager(db *gorm.DB) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Manager{db: db}, nil
}

// CheckAndMarkProcessed claims the event for the consumer. Returns true when
// the event was already processed.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	row := models.ProcessedEvent{EventID: eventID, Consumer: consumer}
	err := m.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// Delete releases a claim so a failed handler can be retried on redelivery.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	return m.db.WithContext(ctx).
		Where("event_id = ? AND consumer = ?", eventID, consumer).
		Delete(&models.ProcessedEvent{}).Error
}
