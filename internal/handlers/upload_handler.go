package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prabhakart16/KafkaBatchUpload/internal/bus"
	"github.com/prabhakart16/KafkaBatchUpload/internal/services/tracking"
)

// Publisher is the slice of the bus the handler needs.
type Publisher interface {
	Publish(ctx context.Context, env *bus.Envelope) error
}

type UploadHandler struct {
	tracking  *tracking.Service
	publisher Publisher
}

func NewUploadHandler(trackingService *tracking.Service, publisher Publisher) *UploadHandler {
	return &UploadHandler{
		tracking:  trackingService,
		publisher: publisher,
	}
}

// ChunkPayload is one pre-split chunk of an upload.
type ChunkPayload struct {
	BatchID     string       `json:"batchId"`
	ChunkIndex  int          `json:"chunkIndex"`
	TotalChunks int          `json:"totalChunks"`
	TenantID    string       `json:"tenantId"`
	Records     []bus.Record `json:"records"`
}

type APIResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	BatchID    string `json:"batchId"`
	ChunkIndex int    `json:"chunkIndex"`
}

// UploadChunk validates one chunk, records it as received, then publishes it.
// Tracking state is committed before the publish is attempted, so a publish
// failure leaves a received-but-not-queued batch visible to status queries
// rather than a silent loss.
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	var payload ChunkPayload
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success:    false,
			Message:    "Payload is required",
			ChunkIndex: -1,
		})
		return
	}

	if msg := validatePayload(&payload); msg != "" {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success:    false,
			Message:    msg,
			BatchID:    payload.BatchID,
			ChunkIndex: payload.ChunkIndex,
		})
		return
	}

	log.Printf("Received chunk %d/%d for batch %s with %d records",
		payload.ChunkIndex, payload.TotalChunks, payload.BatchID, len(payload.Records))

	duplicate, err := h.tracking.IsChunkReceived(payload.BatchID, payload.ChunkIndex)
	if err != nil {
		h.serverError(c, &payload, err)
		return
	}
	if duplicate {
		log.Printf("Duplicate chunk detected: BatchId=%s ChunkIndex=%d",
			payload.BatchID, payload.ChunkIndex)
		c.JSON(http.StatusOK, APIResponse{
			Success:    true,
			Message:    "Chunk already processed (duplicate)",
			BatchID:    payload.BatchID,
			ChunkIndex: payload.ChunkIndex,
		})
		return
	}

	created, err := h.tracking.MarkChunkReceived(payload.BatchID, payload.ChunkIndex, payload.TotalChunks)
	if err != nil {
		h.serverError(c, &payload, err)
		return
	}
	if !created {
		// Lost a race with a concurrent duplicate submission.
		c.JSON(http.StatusOK, APIResponse{
			Success:    true,
			Message:    "Chunk already processed (duplicate)",
			BatchID:    payload.BatchID,
			ChunkIndex: payload.ChunkIndex,
		})
		return
	}

	env := &bus.Envelope{
		MessageID:      uuid.New().String(),
		BatchID:        payload.BatchID,
		ChunkIndex:     payload.ChunkIndex,
		TotalChunks:    payload.TotalChunks,
		TotalSubChunks: 1,
		TenantID:       payload.TenantID,
		Timestamp:      time.Now().UTC(),
		Records:        payload.Records,
	}
	if err := h.publisher.Publish(c.Request.Context(), env); err != nil {
		h.serverError(c, &payload, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success:    true,
		Message:    "Chunk received and queued for processing",
		BatchID:    payload.BatchID,
		ChunkIndex: payload.ChunkIndex,
	})
}

func (h *UploadHandler) GetBatchStatus(c *gin.Context) {
	batchID := c.Param("batchId")

	status, err := h.tracking.GetBatchStatus(batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Batch not found"})
			return
		}
		log.Printf("Error retrieving batch status for %s: %v", batchID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error retrieving batch status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

func validatePayload(payload *ChunkPayload) string {
	if payload.BatchID == "" {
		return "BatchId is required"
	}
	if len(payload.Records) == 0 {
		return "Records array is required and must contain at least one record"
	}
	for i, rec := range payload.Records {
		if rec.ID == "" {
			return fmt.Sprintf("Record at index %d has invalid Id", i)
		}
		if rec.TenantID == "" {
			return fmt.Sprintf("Record at index %d has invalid TenantId", i)
		}
		if _, err := bus.ParseDate(rec.Date); err != nil {
			return fmt.Sprintf("Record at index %d has invalid Date format. Expected: yyyy-MM-dd or ISO 8601", i)
		}
	}
	return ""
}

func (h *UploadHandler) serverError(c *gin.Context, payload *ChunkPayload, err error) {
	log.Printf("Error processing chunk %d for batch %s: %v",
		payload.ChunkIndex, payload.BatchID, err)
	c.JSON(http.StatusInternalServerError, APIResponse{
		Success:    false,
		Message:    "Internal server error: " + err.Error(),
		BatchID:    payload.BatchID,
		ChunkIndex: payload.ChunkIndex,
	})
}
