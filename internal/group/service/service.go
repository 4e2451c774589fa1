// Package service implements organizer group admission in two phases.
//
// Upload parses and validates a file and persists every row with its errors; it never
// consumes capacity. Process admits a clean batch atomically: either every row gets a
// registration or none does.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"raceday/internal/registration/hold"
	"raceday/internal/registration/metrics"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/requestcontext"
)

// DefaultSystemBuyerEmail owns admitted rows until their participant claims them.
const DefaultSystemBuyerEmail = "group-registrations@system.raceday.local"

// Service implements batch upload and processing.
type Service struct {
	tx              ports.TxRunner
	policy          hold.Policy
	paymentsEnabled bool
	systemBuyer     *systemBuyer
	revalidator     ports.Revalidator
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithHoldPolicy(p hold.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithPaymentsEnabled admits rows as payment_pending instead of confirmed.
func WithPaymentsEnabled(enabled bool) Option {
	return func(s *Service) {
		s.paymentsEnabled = enabled
	}
}

// WithSystemBuyerEmail sets the account used as placeholder buyer.
func WithSystemBuyerEmail(email string) Option {
	return func(s *Service) {
		if email != "" {
			s.systemBuyer = newSystemBuyer(email)
		}
	}
}

func WithRevalidator(r ports.Revalidator) Option {
	return func(s *Service) {
		s.revalidator = r
	}
}

// New constructs a Service.
func New(tx ports.TxRunner, opts ...Option) *Service {
	s := &Service{
		tx:          tx,
		policy:      hold.DefaultPolicy(),
		systemBuyer: newSystemBuyer(DefaultSystemBuyerEmail),
		logger:      slog.Default(),
		tracer:      otel.Tracer("raceday/group"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "group."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// internal wraps unexpected failures; domain errors pass through untouched.
func internal(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func loadBatch(ctx context.Context, st ports.BatchStore, id uuid.UUID, lock bool) (*models.GroupBatch, error) {
	var (
		batch *models.GroupBatch
		err   error
	)
	if lock {
		batch, err = st.LockBatch(ctx, id)
	} else {
		batch, err = st.GetBatch(ctx, id)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "batch not found")
		}
		return nil, internal(err, "failed to load batch")
	}
	return batch, nil
}

func (s *Service) appendAudit(ctx context.Context, st ports.AuditSink, action audit.AuditEvent, editionID uuid.UUID, subject string, details map[string]any) error {
	ev := audit.New(action, requestcontext.Now(ctx))
	ev.ActorID = requestcontext.UserID(ctx)
	ev.EditionID = editionID
	ev.Subject = subject
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.Details = details
	if err := st.AppendAudit(ctx, ev); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit record")
	}
	return nil
}

func (s *Service) revalidate(ctx context.Context, editionID uuid.UUID) {
	if s.revalidator == nil {
		return
	}
	if err := s.revalidator.RevalidateTags(ctx, ports.Tags(editionID)...); err != nil {
		s.logger.WarnContext(ctx, "cache revalidation failed",
			"edition_id", editionID,
			"error", err,
		)
	}
}

func batchSubject(id uuid.UUID) string {
	return "batch:" + id.String()
}
