// Package service binds pre-created registrations to the accounts they were meant for.
//
// IssueInvites mails a one-time token for every unclaimed registration of a processed
// batch. Claim checks the caller against the invite's expected email and date of
// birth and, on a match, moves the registration from the placeholder buyer to the caller.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rlmodels "raceday/internal/ratelimit/models"
	"raceday/internal/ratelimit/store/bucket"
	"raceday/internal/registration/metrics"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/audit"
	"raceday/pkg/requestcontext"
)

// DefaultInviteTTL is how long a sent invite stays claimable.
const DefaultInviteTTL = 14 * 24 * time.Hour

// Limiter is the sliding-window check guarding Claim.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*rlmodels.RateLimitResult, error)
}

// Limit is a request budget per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

var (
	defaultCallerLimit = Limit{Requests: 10, Window: 15 * time.Minute}
	defaultTokenLimit  = Limit{Requests: 5, Window: 15 * time.Minute}
)

// Service implements invite issuance and claiming.
type Service struct {
	tx          ports.TxRunner
	hasher      *TokenHasher
	limiter     Limiter
	callerLimit Limit
	tokenLimit  Limit
	inviteTTL   time.Duration
	mailer      ports.Mailer
	revalidator ports.Revalidator
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
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

// WithLimiter replaces the per-process limiter, typically with a Redis-backed one.
func WithLimiter(l Limiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

// WithLimits sets the claim budgets per caller and per token.
func WithLimits(perCaller, perToken Limit) Option {
	return func(s *Service) {
		s.callerLimit = perCaller
		s.tokenLimit = perToken
	}
}

func WithInviteTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.inviteTTL = ttl
		}
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
func New(tx ports.TxRunner, hasher *TokenHasher, opts ...Option) *Service {
	s := &Service{
		tx:          tx,
		hasher:      hasher,
		limiter:     bucket.NewInMemoryBucketStore(),
		callerLimit: defaultCallerLimit,
		tokenLimit:  defaultTokenLimit,
		inviteTTL:   DefaultInviteTTL,
		logger:      slog.Default(),
		tracer:      otel.Tracer("raceday/invite"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "invite."+name, trace.WithAttributes(attrs...))
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

func newEvent(ctx context.Context, action audit.AuditEvent, editionID uuid.UUID, subject string, details map[string]any) audit.Event {
	ev := audit.New(action, requestcontext.Now(ctx))
	ev.ActorID = requestcontext.UserID(ctx)
	ev.EditionID = editionID
	ev.Subject = subject
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.Details = details
	return ev
}

// recordAudit writes ev in its own transaction. Used for events that must survive
// the failure of the operation they describe or that follow a committed one.
func (s *Service) recordAudit(ctx context.Context, ev audit.Event) {
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		return st.AppendAudit(ctx, ev)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to write audit record",
			"action", ev.Action,
			"subject", ev.Subject,
			"error", err,
		)
	}
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

func registrationSubject(id uuid.UUID) string {
	return "registration:" + id.String()
}
