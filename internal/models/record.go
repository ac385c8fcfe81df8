package models

import "time"

// UploadRecord is the final destination row. Keyed by (record_id, batch_id)
// so re-applying the same record updates in place instead of duplicating.
type UploadRecord struct {
	RecordID   string `gorm:"primaryKey"`
	BatchID    string `gorm:"primaryKey"`
	TenantID   string `gorm:"index"`
	Name       string
	Email      string
	Amount     float64
	Date       time.Time
	ChunkIndex int
	MessageID  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
