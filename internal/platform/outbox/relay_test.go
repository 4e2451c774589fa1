package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRouting(t *testing.T) {
	r := NewRelay(nil, nil, map[Kind]string{KindAudit: "raceday.audit", KindEmail: "raceday.email"})
	at := time.Date(2026, 4, 12, 8, 30, 0, 0, time.UTC)
	edition := uuid.NewString()

	t.Run("kind selects the topic and the aggregate is the key", func(t *testing.T) {
		e := Entry{ID: uuid.New(), Kind: KindEmail, AggregateID: edition, EventType: "email.invite", Payload: []byte(`{}`), CreatedAt: at}
		rec, err := r.record(e)
		require.NoError(t, err)
		assert.Equal(t, "raceday.email", rec.Topic)
		assert.Equal(t, edition, string(rec.Key))
		assert.Equal(t, at, rec.Timestamp)
		require.Len(t, rec.Headers, 2)
		assert.Equal(t, "email.invite", string(rec.Headers[0].Value))
	})

	t.Run("unknown kind is an error", func(t *testing.T) {
		_, err := r.record(Entry{ID: uuid.New(), Kind: "sms"})
		assert.Error(t, err)
	})
}

func TestOptions(t *testing.T) {
	r := NewRelay(nil, nil, nil, WithBatchSize(10), WithInterval(time.Minute), WithBatchSize(-1))
	assert.Equal(t, 10, r.batchSize)
	assert.Equal(t, time.Minute, r.interval)
}
