package models

import "time"

// Batch status values. Status only moves forward:
// Receiving -> Processing -> Completed.
const (
	BatchReceiving  = "Receiving"
	BatchProcessing = "Processing"
	BatchCompleted  = "Completed"
)

type UploadBatch struct {
	BatchID         string `gorm:"primaryKey"`
	TotalChunks     int
	ReceivedChunks  int
	ProcessedChunks int
	Status          string `gorm:"index"`
	CreatedAt       time.Time
	CompletedAt     *time.Time
}
