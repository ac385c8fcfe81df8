package models

import "time"

const (
	ChunkReceived  = "Received"
	ChunkProcessed = "Processed"
)

// BatchChunk tracks one submitted chunk. A chunk that was split for
// transport is only flagged Processed once every sub-chunk has landed.
type BatchChunk struct {
	BatchID            string `gorm:"primaryKey"`
	ChunkIndex         int    `gorm:"primaryKey"`
	Status             string `gorm:"index"`
	TotalSubChunks     int
	ProcessedSubChunks int
	ReceivedAt         time.Time
	ProcessedAt        *time.Time
}
