package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prabhakart16/KafkaBatchUpload/internal/bus"
	"github.com/prabhakart16/KafkaBatchUpload/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.UploadBatch{},
		&models.BatchChunk{},
		&models.UploadRecord{},
		&models.ProcessedMessage{},
		&models.FailedMessage{},
	))
	return db
}

func testEnvelope() *bus.Envelope {
	return &bus.Envelope{
		MessageID:      "msg-1",
		BatchID:        "batch-1",
		ChunkIndex:     0,
		TotalChunks:    1,
		TotalSubChunks: 1,
		Records: []bus.Record{
			{ID: "r-1", TenantID: "t-1", Name: "Alice", Email: "alice@example.com", Amount: 100, Date: "2024-03-01"},
			{ID: "r-2", TenantID: "t-1", Name: "Bob", Email: "bob@example.com", Amount: 200, Date: "2024-03-02"},
		},
	}
}

func TestUpsertRecordsInsertsOnce(t *testing.T) {
	db := testDB(t)
	repo := NewRecordRepository(db)

	require.NoError(t, repo.UpsertRecords(context.Background(), testEnvelope()))

	var count int64
	db.Model(&models.UploadRecord{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestUpsertRecordsIsIdempotent(t *testing.T) {
	db := testDB(t)
	repo := NewRecordRepository(db)
	env := testEnvelope()

	require.NoError(t, repo.UpsertRecords(context.Background(), env))
	require.NoError(t, repo.UpsertRecords(context.Background(), env))

	var count int64
	db.Model(&models.UploadRecord{}).Count(&count)
	assert.EqualValues(t, 2, count, "re-applying the same envelope must not duplicate rows")
}

func TestUpsertRecordsUpdatesInPlace(t *testing.T) {
	db := testDB(t)
	repo := NewRecordRepository(db)
	env := testEnvelope()

	require.NoError(t, repo.UpsertRecords(context.Background(), env))

	env.Records[0].Name = "Alice Updated"
	env.Records[0].Amount = 150
	require.NoError(t, repo.UpsertRecords(context.Background(), env))

	var row models.UploadRecord
	require.NoError(t, db.First(&row, "record_id = ? AND batch_id = ?", "r-1", "batch-1").Error)
	assert.Equal(t, "Alice Updated", row.Name)
	assert.Equal(t, 150.0, row.Amount)

	var count int64
	db.Model(&models.UploadRecord{}).Where("record_id = ?", "r-1").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestSameRecordIDInDifferentBatches(t *testing.T) {
	db := testDB(t)
	repo := NewRecordRepository(db)

	env := testEnvelope()
	require.NoError(t, repo.UpsertRecords(context.Background(), env))

	other := testEnvelope()
	other.MessageID = "msg-2"
	other.BatchID = "batch-2"
	require.NoError(t, repo.UpsertRecords(context.Background(), other))

	var count int64
	db.Model(&models.UploadRecord{}).Where("record_id = ?", "r-1").Count(&count)
	assert.EqualValues(t, 2, count, "the storage key is (id, batchId)")
}

func TestMessageLedger(t *testing.T) {
	db := testDB(t)
	repo := NewRecordRepository(db)
	env := testEnvelope()

	processed, err := repo.IsMessageProcessed(env.MessageID)
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, repo.MarkMessageProcessed(env))
	// Racing redelivery writes are collapsed, not errors.
	require.NoError(t, repo.MarkMessageProcessed(env))

	processed, err = repo.IsMessageProcessed(env.MessageID)
	require.NoError(t, err)
	assert.True(t, processed)

	var count int64
	db.Model(&models.ProcessedMessage{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestLogFailedMessageKeepsPayload(t *testing.T) {
	db := testDB(t)
	repo := NewRecordRepository(db)

	payload := []byte(`{"messageId":"msg-9","batchId":"batch-9"}`)
	require.NoError(t, repo.LogFailedMessage("msg-9", "batch-9", 2, payload, "something broke"))

	var row models.FailedMessage
	require.NoError(t, db.First(&row, "message_id = ?", "msg-9").Error)
	assert.Equal(t, "batch-9", row.BatchID)
	assert.Equal(t, 2, row.ChunkIndex)
	assert.Equal(t, "something broke", row.ErrorMessage)
	assert.JSONEq(t, string(payload), string(row.Payload))
}

func TestLogFailedMessageNonJSONPayload(t *testing.T) {
	db := testDB(t)
	repo := NewRecordRepository(db)

	require.NoError(t, repo.LogFailedMessage("msg-10", "", 0, []byte("not json at all"), "malformed"))

	var row models.FailedMessage
	require.NoError(t, db.First(&row, "message_id = ?", "msg-10").Error)
	assert.Contains(t, string(row.Payload), "not json at all")
}
