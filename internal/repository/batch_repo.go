package repository

import (
	"github.com/prabhakart16/KafkaBatchUpload/internal/models"

	"gorm.io/gorm"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Expose DB for the tracking service's transactions
func (r *BatchRepository) DB() *gorm.DB {
	return r.db
}

func (r *BatchRepository) GetBatch(batchID string) (*models.UploadBatch, error) {
	var batch models.UploadBatch
	if err := r.db.First(&batch, "batch_id = ?", batchID).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// ChunkExists reports whether the chunk was already marked received.
func (r *BatchRepository) ChunkExists(batchID string, chunkIndex int) (bool, error) {
	var count int64
	err := r.db.Model(&models.BatchChunk{}).
		Where("batch_id = ? AND chunk_index = ?", batchID, chunkIndex).
		Count(&count).Error
	return count > 0, err
}
