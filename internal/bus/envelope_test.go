package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionKeyDeterministic(t *testing.T) {
	k1 := PartitionKey("tenant-1", "batch-1")
	k2 := PartitionKey("tenant-1", "batch-2")
	assert.Equal(t, k1, k2, "same tenant must always yield the same key")

	assert.NotEqual(t, PartitionKey("tenant-1", ""), PartitionKey("tenant-2", ""))
}

func TestPartitionKeyFallsBackToBatchID(t *testing.T) {
	assert.Equal(t, PartitionKey("", "batch-1"), PartitionKey("batch-1", "ignored"))
}

func makeRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			ID:       fmt.Sprintf("r-%d", i),
			TenantID: "t-1",
			Name:     "Name",
			Email:    "name@example.com",
			Amount:   12.50,
			Date:     "2024-03-01",
		}
	}
	return records
}

func TestSplitPreservesRecordsInOrder(t *testing.T) {
	env := &Envelope{
		MessageID:   "msg-1",
		BatchID:     "batch-1",
		ChunkIndex:  3,
		TotalChunks: 5,
		TenantID:    "t-1",
		Timestamp:   time.Now().UTC(),
		Records:     makeRecords(2500),
	}

	subs := Split(env, 1000)
	require.Len(t, subs, 3)

	var joined []Record
	for i, sub := range subs {
		assert.Equal(t, fmt.Sprintf("msg-1_sub_%d", i), sub.MessageID)
		assert.Equal(t, i, sub.SubChunkIndex)
		assert.Equal(t, 3, sub.TotalSubChunks)
		assert.Equal(t, env.ChunkIndex, sub.ChunkIndex)
		assert.Equal(t, env.BatchID, sub.BatchID)
		assert.LessOrEqual(t, len(sub.Records), 1000)
		joined = append(joined, sub.Records...)
	}
	assert.Equal(t, env.Records, joined)
}

func TestSplitSubMessageIDsAreStable(t *testing.T) {
	env := &Envelope{MessageID: "parent", Records: makeRecords(1500)}

	first := Split(env, 1000)
	second := Split(env, 1000)
	require.Len(t, first, 2)
	for i := range first {
		// Retried publishes of the same logical chunk reuse the same ids.
		assert.Equal(t, first[i].MessageID, second[i].MessageID)
	}
}

func TestSplitExactMultiple(t *testing.T) {
	env := &Envelope{MessageID: "m", Records: makeRecords(2000)}
	subs := Split(env, 1000)
	require.Len(t, subs, 2)
	assert.Len(t, subs[0].Records, 1000)
	assert.Len(t, subs[1].Records, 1000)
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("2024-03-01")
	assert.NoError(t, err)

	_, err = ParseDate("2024-03-01T10:30:00Z")
	assert.NoError(t, err)

	_, err = ParseDate("not-a-date")
	assert.Error(t, err)
}
