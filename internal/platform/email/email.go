// Package email implements the registration Mailer.
//
// OutboxMailer queues jobs on the outbox for the email topic; a downstream sender owns
// templates and delivery. LogMailer writes the message to the log for local runs.
package email

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"raceday/internal/registration/ports"
	txcontext "raceday/pkg/platform/tx"
)

const (
	JobConfirmation = "email.registration_confirmation"
	JobInvite       = "email.registration_invite"
)

// Job is the payload published on the email topic.
type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	To        string          `json:"to"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// OutboxMailer joins the caller's transaction when there is one.
type OutboxMailer struct {
	db  *sql.DB
	now func() time.Time
}

func NewOutboxMailer(db *sql.DB) *OutboxMailer {
	return &OutboxMailer{db: db, now: time.Now}
}

func (m *OutboxMailer) SendRegistrationConfirmation(ctx context.Context, msg ports.ConfirmationEmail) error {
	return m.enqueue(ctx, JobConfirmation, msg.To, msg.RegistrationID.String(), map[string]any{
		"first_name":      msg.FirstName,
		"registration_id": msg.RegistrationID,
		"edition_id":      msg.EditionID,
		"distance":        msg.DistanceLabel,
		"status":          string(msg.Status),
		"total_cents":     msg.TotalCents,
	})
}

// SendInvite queues the raw token. The outbox row is the only place it is persisted
// and the row is consumed by the email sender.
func (m *OutboxMailer) SendInvite(ctx context.Context, msg ports.InviteEmail) error {
	return m.enqueue(ctx, JobInvite, msg.To, msg.EditionID.String(), map[string]any{
		"first_name": msg.FirstName,
		"edition_id": msg.EditionID,
		"token":      msg.Token,
		"expires_at": msg.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (m *OutboxMailer) enqueue(ctx context.Context, jobType, to, aggregateID string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s data: %w", jobType, err)
	}
	now := m.now().UTC()
	job := Job{ID: uuid.NewString(), Type: jobType, To: to, CreatedAt: now, Data: raw}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", jobType, err)
	}

	_, err = txcontext.Pick(ctx, m.db).ExecContext(ctx, `
		INSERT INTO outbox (id, topic_kind, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, 'email', 'email', $2, $3, $4, $5)
	`, uuid.New(), aggregateID, jobType, payload, now)
	if err != nil {
		return fmt.Errorf("queue %s: %w", jobType, err)
	}
	return nil
}

// LogMailer logs messages instead of sending them. Tokens are never logged.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendRegistrationConfirmation(ctx context.Context, msg ports.ConfirmationEmail) error {
	m.logger.InfoContext(ctx, "registration confirmation email",
		"to", msg.To,
		"registration_id", msg.RegistrationID,
		"status", string(msg.Status),
		"total_cents", msg.TotalCents,
	)
	return nil
}

func (m *LogMailer) SendInvite(ctx context.Context, msg ports.InviteEmail) error {
	m.logger.InfoContext(ctx, "registration invite email",
		"to", msg.To,
		"edition_id", msg.EditionID,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
