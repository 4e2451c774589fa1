package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"raceday/internal/registration/capacity"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/requestcontext"
)

// Start opens a hold on one slot of distanceID for callerID.
func (s *Service) Start(ctx context.Context, callerID, distanceID uuid.UUID) (reg *models.Registration, err error) {
	ctx, span := s.startSpan(ctx, "Start", attribute.String("distance_id", distanceID.String()))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("start", time.Now())

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		d, err := st.GetDistance(ctx, distanceID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "distance not found")
			}
			return internal(err, "failed to load distance")
		}

		locked, err := capacity.Lock(ctx, st, d.EditionID, d.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeEventNotFound, "event not found")
			}
			return internal(err, "failed to lock capacity")
		}
		edition, distance := locked.Edition, locked.Distances[d.ID]

		if err := edition.Window(now).Err(false); err != nil {
			return err
		}

		scope, _ := locked.Scope(distance.ID)
		res, err := capacity.Check(ctx, st, scope, now, 1, nil)
		if err != nil {
			return internal(err, "failed to count reservations")
		}
		if !res.Admitted {
			return dErrors.New(dErrors.CodeSoldOut, "distance is sold out")
		}

		buyer := callerID
		reg = models.NewRegistration(edition.ID, distance.ID, &buyer, models.PaymentSelfPay, models.StatusStarted,
			models.QuoteFor(distance, now, 0), s.policy.ExpiresAtFor(now, models.StatusStarted), now)
		if err := st.InsertRegistration(ctx, reg); err != nil {
			return internal(err, "failed to create registration")
		}
		return s.appendAudit(ctx, st, audit.EventRegistrationStarted, reg, map[string]any{
			"distance_id": distance.ID.String(),
			"scope":       string(scope.Kind),
			"reserved":    res.Reserved + 1,
		})
	})
	if err != nil {
		s.metrics.IncrementAdmission("single", string(dErrors.CodeOf(err)))
		return nil, internal(err, "failed to start registration")
	}

	s.metrics.IncrementAdmission("single", "admitted")
	s.logger.InfoContext(ctx, "registration started",
		"registration_id", reg.ID,
		"edition_id", reg.EditionID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.revalidate(ctx, reg.EditionID)
	return reg, nil
}
