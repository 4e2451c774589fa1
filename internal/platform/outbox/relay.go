// Package outbox relays committed outbox rows to Kafka.
//
// Services write audit events and email jobs to the outbox table inside their own
// transactions. The relay publishes unprocessed rows in creation order and stamps them,
// so a row is published at least once iff the transaction that wrote it committed.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"

	"raceday/internal/platform/metrics"
)

// Kind routes an outbox row to a topic.
type Kind string

const (
	KindAudit Kind = "audit"
	KindEmail Kind = "email"
)

// Producer is the subset of *kgo.Client the relay uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Entry is one unprocessed outbox row.
type Entry struct {
	ID          uuid.UUID
	Kind        Kind
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Relay polls the outbox and publishes.
type Relay struct {
	db        *sql.DB
	producer  Producer
	topics    map[Kind]string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(r *Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRelay builds a relay publishing each Kind to its topic.
func NewRelay(db *sql.DB, producer Producer, topics map[Kind]string, opts ...Option) *Relay {
	r := &Relay{
		db:        db,
		producer:  producer,
		topics:    topics,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. A full batch is followed immediately by the next.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
		}
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes up to one batch and returns how many rows were published.
// Rows are claimed with SKIP LOCKED so several relays can run side by side.
func (r *Relay) RelayOnce(ctx context.Context) (n int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entries, err := claim(ctx, tx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, tx.Commit()
	}

	records := make([]*kgo.Record, 0, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		rec, err := r.record(e)
		if err != nil {
			return 0, err
		}
		records = append(records, rec)
		ids = append(ids, e.ID)
	}

	if perr := r.producer.ProduceSync(ctx, records...).FirstErr(); perr != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET attempts = attempts + 1 WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
			return 0, fmt.Errorf("record outbox attempt: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit outbox attempt: %w", err)
		}
		r.observe(records, "error")
		return 0, fmt.Errorf("publish outbox batch: %w", perr)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET processed_at = $2, attempts = attempts + 1 WHERE id = ANY($1)`,
		pq.Array(ids), time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("mark outbox processed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}
	r.observe(records, "ok")
	return len(entries), nil
}

func (r *Relay) observe(records []*kgo.Record, outcome string) {
	perTopic := map[string]int{}
	for _, rec := range records {
		perTopic[rec.Topic]++
	}
	for topic, n := range perTopic {
		r.metrics.AddOutboxPublished(topic, outcome, n)
	}
}

func claim(ctx context.Context, tx *sql.Tx, limit int) ([]Entry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, topic_kind, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

// record keys by aggregate so events of one edition stay ordered within a partition.
func (r *Relay) record(e Entry) (*kgo.Record, error) {
	topic, ok := r.topics[e.Kind]
	if !ok {
		return nil, fmt.Errorf("no topic for outbox kind %q (entry %s)", e.Kind, e.ID)
	}
	return &kgo.Record{
		Topic:     topic,
		Key:       []byte(e.AggregateID),
		Value:     e.Payload,
		Timestamp: e.CreatedAt,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "outbox_id", Value: []byte(e.ID.String())},
		},
	}, nil
}
