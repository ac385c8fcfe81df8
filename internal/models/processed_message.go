package models

import "time"

// ProcessedMessage is the idempotency ledger. A row exists only after the
// message's records have been committed, so presence means "safe to skip".
type ProcessedMessage struct {
	MessageID   string `gorm:"primaryKey"`
	BatchID     string `gorm:"index"`
	ChunkIndex  int
	ProcessedAt time.Time
}
