package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedEvent records that a consumer already handled an event. Inserted
// in the same transaction as the consumer's side effects so redelivered
// messages are dropped.
type ProcessedEvent struct {
	EventID     uuid.UUID `gorm:"column:event_id;type:uuid;primaryKey"`
	Consumer    string    `gorm:"column:consumer;primaryKey"`
	ProcessedAt time.Time `gorm:"column:processed_at;autoCreateTime"`
}
