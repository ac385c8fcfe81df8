package consumer

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/prabhakart16/KafkaBatchUpload/internal/bus"
	"github.com/prabhakart16/KafkaBatchUpload/internal/config"
	"github.com/prabhakart16/KafkaBatchUpload/internal/repository"
	"github.com/prabhakart16/KafkaBatchUpload/internal/services/tracking"
)

const (
	retryBaseDelay = 2 * time.Second
	errorPause     = 5 * time.Second
)

// Consumer runs one sequential fetch-process-commit loop. The offset is only
// committed once a message's effects (records, ledger, progress) are durable,
// or once the message is durably dead-lettered. Scale-out is more processes
// in the same consumer group; Kafka's partition ownership is the only
// synchronization between them.
type Consumer struct {
	reader     *kafka.Reader
	records    *repository.RecordRepository
	tracking   *tracking.Service
	maxRetries int
}

func New(cfg *config.Config, records *repository.RecordRepository, trackingService *tracking.Service) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.KafkaGroupID,
		Topic:          cfg.KafkaTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0, // synchronous commits
	})

	return &Consumer{
		reader:     reader,
		records:    records,
		tracking:   trackingService,
		maxRetries: cfg.MaxRetryAttempts,
	}
}

// Run polls until the context is cancelled. A message whose processing fails
// without durable dead-lettering is left uncommitted so it redelivers.
func (c *Consumer) Run(ctx context.Context) {
	log.Printf("Kafka consumer started: topic=%s", c.reader.Config().Topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Consumer shutting down")
				return
			}
			log.Printf("Error fetching message from Kafka: %v", err)
			if !sleepCtx(ctx, errorPause) {
				return
			}
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			log.Printf("Message effects not durable, leaving offset uncommitted: %v", err)
			if !sleepCtx(ctx, errorPause) {
				return
			}
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error committing offset: %v", err)
		}
	}
}

// processMessage applies one delivery. A nil return means the message is
// settled (applied, skipped, or dead-lettered) and its offset may be
// committed. An error means nothing durable happened and redelivery is safe.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	start := time.Now()

	var env bus.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// Malformed payloads cannot be retried productively. Dead-letter from
		// the transport headers and settle, so the partition is not blocked.
		log.Printf("Failed to deserialize message at offset %d: %v", msg.Offset, err)
		messageID, batchID, chunkIndex := headerMeta(msg)
		return c.records.LogFailedMessage(messageID, batchID, chunkIndex, msg.Value,
			"malformed payload: "+err.Error())
	}

	processed, err := c.records.IsMessageProcessed(env.MessageID)
	if err != nil {
		return errors.Wrap(err, "checking idempotency ledger")
	}
	if processed {
		log.Printf("Message already processed (idempotent skip): MessageId=%s", env.MessageID)
		// A crash between the ledger write and the progress advance leaves
		// the chunk stranded; the advance recomputes from the ledger, so
		// repeating it here converges redeliveries to the right state.
		if err := c.tracking.MarkSubChunkProcessed(env.BatchID, env.ChunkIndex, env.TotalSubChunks); err != nil {
			return errors.Wrap(err, "advancing batch progress")
		}
		return nil
	}

	log.Printf("Processing message: MessageId=%s BatchId=%s ChunkIndex=%d Records=%d",
		env.MessageID, env.BatchID, env.ChunkIndex, len(env.Records))

	if err := c.applyWithRetry(ctx, &env); err != nil {
		// Shutdown mid-apply is not a message failure. Leave the offset
		// uncommitted so the message redelivers instead of dead-lettering.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "apply interrupted by shutdown")
		}
		log.Printf("Permanent failure for MessageId=%s: %v", env.MessageID, err)
		return c.records.LogFailedMessage(env.MessageID, env.BatchID, env.ChunkIndex,
			msg.Value, err.Error())
	}

	if err := c.records.MarkMessageProcessed(&env); err != nil {
		return errors.Wrap(err, "writing idempotency ledger")
	}
	if err := c.tracking.MarkSubChunkProcessed(env.BatchID, env.ChunkIndex, env.TotalSubChunks); err != nil {
		return errors.Wrap(err, "advancing batch progress")
	}

	log.Printf("Successfully processed message in %v: MessageId=%s BatchId=%s ChunkIndex=%d",
		time.Since(start), env.MessageID, env.BatchID, env.ChunkIndex)
	return nil
}

// applyWithRetry upserts the envelope's records, retrying transient store
// errors with doubling backoff (2s, 4s, 8s by default). Exhausting retries or
// hitting a non-transient error is a permanent failure.
func (c *Consumer) applyWithRetry(ctx context.Context, env *bus.Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			log.Printf("Retry %d/%d after %v for MessageId=%s: %v",
				attempt, c.maxRetries, delay, env.MessageID, lastErr)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
		}

		lastErr = c.records.UpsertRecords(ctx, env)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
	}
	return errors.Wrapf(lastErr, "retries exhausted after %d attempts", c.maxRetries)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func headerMeta(msg kafka.Message) (messageID, batchID string, chunkIndex int) {
	for _, h := range msg.Headers {
		switch h.Key {
		case "MessageId":
			messageID = string(h.Value)
		case "BatchId":
			batchID = string(h.Value)
		case "ChunkIndex":
			chunkIndex, _ = strconv.Atoi(string(h.Value))
		}
	}
	if messageID == "" {
		// Without an id there is nothing stable to key the dead-letter row
		// on; fall back to the partition offset.
		messageID = "offset-" + strconv.FormatInt(msg.Offset, 10)
	}
	return messageID, batchID, chunkIndex
}

// sleepCtx waits for d unless the context ends first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
