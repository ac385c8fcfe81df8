package bus

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Record is the wire shape of one business row, as submitted by the client
// and as carried inside an Envelope.
type Record struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenantId"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Amount   float64 `json:"amount"`
	Date     string  `json:"date"`
}

// Envelope is the unit placed on Kafka: one chunk, or one sub-chunk when the
// chunk had to be split to fit under the message size limit.
type Envelope struct {
	MessageID      string    `json:"messageId"`
	BatchID        string    `json:"batchId"`
	ChunkIndex     int       `json:"chunkIndex"`
	TotalChunks    int       `json:"totalChunks"`
	SubChunkIndex  int       `json:"subChunkIndex"`
	TotalSubChunks int       `json:"totalSubChunks"`
	TenantID       string    `json:"tenantId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Records        []Record  `json:"records"`
}

// PartitionKey derives the Kafka message key from the tenant id, falling back
// to the batch id. All envelopes for the same tenant/batch share a key and so
// land on the same partition in publish order. The hash only provides even
// distribution; any stable digest would do.
func PartitionKey(tenantID, batchID string) string {
	key := tenantID
	if key == "" {
		key = batchID
	}
	sum := sha256.Sum256([]byte(key))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Split breaks an oversize envelope into sub-envelopes of at most groupSize
// records each. Sub-message ids are derived from the parent id, so a retried
// publish of the same logical chunk reuses the same identifiers.
func Split(env *Envelope, groupSize int) []*Envelope {
	var subs []*Envelope
	total := (len(env.Records) + groupSize - 1) / groupSize
	for i := 0; i < total; i++ {
		start := i * groupSize
		end := start + groupSize
		if end > len(env.Records) {
			end = len(env.Records)
		}
		subs = append(subs, &Envelope{
			MessageID:      fmt.Sprintf("%s_sub_%d", env.MessageID, i),
			BatchID:        env.BatchID,
			ChunkIndex:     env.ChunkIndex,
			TotalChunks:    env.TotalChunks,
			SubChunkIndex:  i,
			TotalSubChunks: total,
			TenantID:       env.TenantID,
			Timestamp:      env.Timestamp,
			Records:        env.Records[start:end],
		})
	}
	return subs
}

// ParseDate accepts the date formats the client is allowed to send.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
