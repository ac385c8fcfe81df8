package bus

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/prabhakart16/KafkaBatchUpload/internal/config"
)

// Publisher owns the Kafka writer. It must be closed by whoever created it.
type Publisher struct {
	writer          *kafka.Writer
	maxMessageBytes int
	subChunkSize    int
}

func NewPublisher(cfg *config.Config) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 30 * time.Second,
	}
	return &Publisher{
		writer:          w,
		maxMessageBytes: cfg.MaxMessageBytes,
		subChunkSize:    cfg.SubChunkSize,
	}
}

// Publish serializes the envelope and writes it to Kafka. Envelopes whose
// encoded size exceeds the configured ceiling are split into sub-envelopes
// published sequentially on the same partition key, preserving order.
func (p *Publisher) Publish(ctx context.Context, env *Envelope) error {
	key := PartitionKey(env.TenantID, env.BatchID)

	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "serializing envelope")
	}

	if len(data) <= p.maxMessageBytes {
		return p.publishOne(ctx, key, env, data)
	}

	subs := Split(env, p.subChunkSize)
	log.Printf("Splitting large message into %d sub-chunks: BatchId=%s ChunkIndex=%d",
		len(subs), env.BatchID, env.ChunkIndex)

	for _, sub := range subs {
		subData, err := json.Marshal(sub)
		if err != nil {
			return errors.Wrap(err, "serializing sub-envelope")
		}
		if err := p.publishOne(ctx, key, sub, subData); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishOne(ctx context.Context, key string, env *Envelope, data []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "BatchId", Value: []byte(env.BatchID)},
			{Key: "ChunkIndex", Value: []byte(strconv.Itoa(env.ChunkIndex))},
			{Key: "MessageId", Value: []byte(env.MessageID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publishing message %s", env.MessageID)
	}

	log.Printf("Published message: BatchId=%s ChunkIndex=%d MessageId=%s Records=%d",
		env.BatchID, env.ChunkIndex, env.MessageID, len(env.Records))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
