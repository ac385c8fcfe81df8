package tracking

import (
	"errors"
	"log"
	"math"
	"time"

	"github.com/prabhakart16/KafkaBatchUpload/internal/models"
	"github.com/prabhakart16/KafkaBatchUpload/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns every write to the batch/chunk progress rows. Concurrent
// workers finishing chunks of the same batch lock the batch row for the
// duration of the transaction and recompute counts from the source rows,
// never blind increments. Without the lock two workers completing the last
// two chunks could both count before either commits and leave the batch
// stuck below Completed.
type Service struct {
	batchRepo *repository.BatchRepository
	db        *gorm.DB
}

func NewService(batchRepo *repository.BatchRepository) *Service {
	return &Service{
		batchRepo: batchRepo,
		db:        batchRepo.DB(),
	}
}

func (s *Service) IsChunkReceived(batchID string, chunkIndex int) (bool, error) {
	return s.batchRepo.ChunkExists(batchID, chunkIndex)
}

// MarkChunkReceived creates or refreshes the batch row, inserts the chunk row
// and recounts received chunks, all in one transaction. It returns false when
// the chunk row already existed, so a racing duplicate submission degrades to
// an idempotent success instead of a second publish.
func (s *Service) MarkChunkReceived(batchID string, chunkIndex, totalChunks int) (bool, error) {
	created := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// A batch's declared size may change across chunks of the same
		// upload, so total_chunks is refreshed to the latest value.
		batch := models.UploadBatch{
			BatchID:     batchID,
			TotalChunks: totalChunks,
			Status:      models.BatchReceiving,
			CreatedAt:   now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_chunks"}),
		}).Create(&batch).Error; err != nil {
			return err
		}

		// Hold the batch row until commit so concurrent submissions for the
		// same batch count received chunks one at a time.
		var locked models.UploadBatch
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "batch_id = ?", batchID).Error; err != nil {
			return err
		}

		chunk := models.BatchChunk{
			BatchID:        batchID,
			ChunkIndex:     chunkIndex,
			Status:         models.ChunkReceived,
			TotalSubChunks: 1,
			ReceivedAt:     now,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&chunk)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0

		var received int64
		if err := tx.Model(&models.BatchChunk{}).
			Where("batch_id = ?", batchID).
			Count(&received).Error; err != nil {
			return err
		}
		return tx.Model(&models.UploadBatch{}).
			Where("batch_id = ?", batchID).
			Update("received_chunks", received).Error
	})
	if err != nil {
		return false, err
	}

	if created {
		log.Printf("Marked chunk as received: BatchId=%s ChunkIndex=%d", batchID, chunkIndex)
	}
	return created, nil
}

// MarkSubChunkProcessed advances progress after one message's records and
// ledger entry are durable. The sub-chunk count is recomputed from the
// ledger, the chunk flips to Processed once all its sub-chunks are in, and
// the batch's processed count is recomputed from the chunk rows. Status is
// monotonic: a Completed batch never regresses and completed_at is stamped
// exactly once.
func (s *Service) MarkSubChunkProcessed(batchID string, chunkIndex, totalSubChunks int) error {
	if totalSubChunks <= 0 {
		totalSubChunks = 1
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// Lock the batch row before any counting so transactions for the
		// same batch serialize; the counts below must not read stale state
		// from a concurrent worker that has not committed yet.
		var batch models.UploadBatch
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&batch, "batch_id = ?", batchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Message for a batch the gateway never recorded. The records
				// are already applied; there is no progress row to advance.
				log.Printf("No batch row for BatchId=%s, skipping progress update", batchID)
				return nil
			}
			return err
		}

		var done int64
		if err := tx.Model(&models.ProcessedMessage{}).
			Where("batch_id = ? AND chunk_index = ?", batchID, chunkIndex).
			Count(&done).Error; err != nil {
			return err
		}

		res := tx.Model(&models.BatchChunk{}).
			Where("batch_id = ? AND chunk_index = ?", batchID, chunkIndex).
			Updates(map[string]interface{}{
				"total_sub_chunks":     totalSubChunks,
				"processed_sub_chunks": done,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			log.Printf("No chunk row for BatchId=%s ChunkIndex=%d, skipping progress update", batchID, chunkIndex)
			return nil
		}

		if int(done) >= totalSubChunks {
			if err := tx.Model(&models.BatchChunk{}).
				Where("batch_id = ? AND chunk_index = ? AND status <> ?",
					batchID, chunkIndex, models.ChunkProcessed).
				Updates(map[string]interface{}{
					"status":       models.ChunkProcessed,
					"processed_at": now,
				}).Error; err != nil {
				return err
			}
		}

		var processed int64
		if err := tx.Model(&models.BatchChunk{}).
			Where("batch_id = ? AND status = ?", batchID, models.ChunkProcessed).
			Count(&processed).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"processed_chunks": processed}
		if batch.Status != models.BatchCompleted {
			if int(processed) >= batch.TotalChunks && batch.TotalChunks > 0 {
				updates["status"] = models.BatchCompleted
				updates["completed_at"] = now
				log.Printf("Batch completed: BatchId=%s ProcessedChunks=%d", batchID, processed)
			} else {
				updates["status"] = models.BatchProcessing
			}
		}
		return tx.Model(&models.UploadBatch{}).
			Where("batch_id = ?", batchID).
			Updates(updates).Error
	})
}

// BatchStatus is the read model for the status endpoint.
type BatchStatus struct {
	BatchID         string     `json:"batchId"`
	TotalChunks     int        `json:"totalChunks"`
	ReceivedChunks  int        `json:"receivedChunks"`
	ProcessedChunks int        `json:"processedChunks"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	PercentComplete float64    `json:"percentComplete"`
	DurationSeconds *int       `json:"durationSeconds,omitempty"`
}

func (s *Service) GetBatchStatus(batchID string) (*BatchStatus, error) {
	batch, err := s.batchRepo.GetBatch(batchID)
	if err != nil {
		return nil, err
	}

	status := &BatchStatus{
		BatchID:         batch.BatchID,
		TotalChunks:     batch.TotalChunks,
		ReceivedChunks:  batch.ReceivedChunks,
		ProcessedChunks: batch.ProcessedChunks,
		Status:          batch.Status,
		CreatedAt:       batch.CreatedAt,
		CompletedAt:     batch.CompletedAt,
		PercentComplete: percentComplete(batch.ProcessedChunks, batch.TotalChunks),
	}
	if batch.CompletedAt != nil {
		secs := int(batch.CompletedAt.Sub(batch.CreatedAt).Seconds())
		status.DurationSeconds = &secs
	}
	return status, nil
}

func percentComplete(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(processed)/float64(total)*100*100) / 100
}
