package repository

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/prabhakart16/KafkaBatchUpload/internal/bus"
	"github.com/prabhakart16/KafkaBatchUpload/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 1000

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// UpsertRecords applies every record in the envelope as one transaction,
// keyed by (record_id, batch_id). Matched rows update their mutable fields,
// unmatched rows insert. All rows commit together or not at all.
func (r *RecordRepository) UpsertRecords(ctx context.Context, env *bus.Envelope) error {
	now := time.Now().UTC()

	rows := make([]models.UploadRecord, 0, len(env.Records))
	for _, rec := range env.Records {
		date, err := bus.ParseDate(rec.Date)
		if err != nil {
			// The gateway validates dates, so this only happens for messages
			// produced elsewhere. Fall back rather than poison the chunk.
			log.Printf("Unparseable date %q for record %s, using current time", rec.Date, rec.ID)
			date = now
		}
		rows = append(rows, models.UploadRecord{
			RecordID:   rec.ID,
			BatchID:    env.BatchID,
			TenantID:   rec.TenantID,
			Name:       rec.Name,
			Email:      rec.Email,
			Amount:     rec.Amount,
			Date:       date,
			ChunkIndex: env.ChunkIndex,
			MessageID:  env.MessageID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "record_id"}, {Name: "batch_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "email", "amount", "date", "updated_at",
			}),
		}).CreateInBatches(rows, insertBatchSize).Error
	})
}

func (r *RecordRepository) IsMessageProcessed(messageID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.ProcessedMessage{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	return count > 0, err
}

// MarkMessageProcessed writes the idempotency ledger entry. Called only after
// the envelope's records are durably committed.
func (r *RecordRepository) MarkMessageProcessed(env *bus.Envelope) error {
	entry := models.ProcessedMessage{
		MessageID:   env.MessageID,
		BatchID:     env.BatchID,
		ChunkIndex:  env.ChunkIndex,
		ProcessedAt: time.Now().UTC(),
	}
	// A redelivery racing past the ledger check must not fail here.
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
}

// LogFailedMessage appends a dead-letter entry carrying the full payload.
func (r *RecordRepository) LogFailedMessage(messageID, batchID string, chunkIndex int, payload []byte, errMsg string) error {
	if !json.Valid(payload) {
		raw, _ := json.Marshal(string(payload))
		payload = raw
	}
	entry := models.FailedMessage{
		MessageID:    messageID,
		BatchID:      batchID,
		ChunkIndex:   chunkIndex,
		ErrorMessage: errMsg,
		FailedAt:     time.Now().UTC(),
		Payload:      datatypes.JSON(payload),
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
}
