// Package service orchestrates the single registration flow: start, submit, waivers,
// answers, finalize, plus availability and capacity administration.
//
// Every operation runs its reads and writes inside one TxRunner unit. Capacity is only
// counted after capacity.Lock has taken the scope rows, and every status change is a
// compare-and-swap on the expected prior status.
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

// Service implements the single registration flow.
type Service struct {
	tx              ports.TxRunner
	policy          hold.Policy
	paymentsEnabled bool
	mailer          ports.Mailer
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

// WithPaymentsEnabled switches finalize from no-payment mode (confirm immediately) to
// payment_pending for self-pay registrations.
func WithPaymentsEnabled(enabled bool) Option {
	return func(s *Service) {
		s.paymentsEnabled = enabled
	}
}

func WithMailer(m ports.Mailer) Option {
	return func(s *Service) {
		s.mailer = m
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
		tx:     tx,
		policy: hold.DefaultPolicy(),
		logger: slog.Default(),
		tracer: otel.Tracer("raceday/registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "registration."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and closes it.
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

// loadOwned applies the ownership guard. Any registration the caller does not own is
// reported exactly like a missing one so ids cannot be enumerated.
func loadOwned(ctx context.Context, st ports.Store, callerID, id uuid.UUID) (*models.Registration, error) {
	reg, err := st.GetRegistration(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errRegistrationNotFound()
		}
		return nil, internal(err, "failed to load registration")
	}
	if !reg.OwnedBy(callerID) {
		return nil, errRegistrationNotFound()
	}
	return reg, nil
}

func errRegistrationNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "registration not found")
}

// ensureLive rejects lapsed holds before any status is trusted.
func ensureLive(ctx context.Context, reg *models.Registration) error {
	if hold.IsLapsed(reg, requestcontext.Now(ctx)) {
		return dErrors.New(dErrors.CodeRegistrationExpired, "registration hold has expired")
	}
	return nil
}

func (s *Service) appendAudit(ctx context.Context, st ports.Store, action audit.AuditEvent, reg *models.Registration, details map[string]any) error {
	ev := audit.New(action, requestcontext.Now(ctx))
	ev.ActorID = requestcontext.UserID(ctx)
	if reg != nil {
		ev.EditionID = reg.EditionID
		ev.Subject = reg.ID.String()
		if reg.BuyerUserID != nil {
			ev.UserID = *reg.BuyerUserID
		}
	}
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.Details = details
	if err := st.AppendAudit(ctx, ev); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit record")
	}
	return nil
}

// revalidate fires the cache tags for editionID. Failures are logged: the state
// change has already committed.
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

// settleStatus is where a complete registration goes on finalize.
func (s *Service) settleStatus(reg *models.Registration) models.Event {
	if !s.paymentsEnabled || reg.PaymentResponsibility == models.PaymentCentralPay {
		return models.EventFinalizeConfirm
	}
	return models.EventFinalizePending
}
