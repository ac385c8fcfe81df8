package models

import (
	"time"

	"gorm.io/datatypes"
)

// FailedMessage is the dead-letter table. Payload keeps the full original
// envelope for inspection or manual replay.
type FailedMessage struct {
	MessageID    string `gorm:"primaryKey"`
	BatchID      string `gorm:"index"`
	ChunkIndex   int
	ErrorMessage string
	FailedAt     time.Time
	Payload      datatypes.JSON
}
