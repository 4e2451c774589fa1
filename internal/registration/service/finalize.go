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

// FinalizeRegistration re-validates a complete registration and moves it to confirmed,
// or payment_pending when payments are collected from the buyer. Finalizing a
// registration that already settled returns it unchanged.
func (s *Service) FinalizeRegistration(ctx context.Context, callerID, registrationID uuid.UUID) (reg *models.Registration, err error) {
	ctx, span := s.startSpan(ctx, "FinalizeRegistration", attribute.String("registration_id", registrationID.String()))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("finalize", time.Now())

	var (
		gathered completeness
		settled  bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		reg, err = s.loadForFinalize(ctx, st, callerID, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != models.StatusStarted && reg.Status != models.StatusSubmitted {
			settled = true
			return nil
		}
		gathered, err = gatherCompleteness(ctx, st, reg)
		if err != nil {
			return err
		}
		return gathered.Err()
	})
	if err != nil {
		return nil, internal(err, "failed to finalize registration")
	}
	if settled {
		return reg, nil
	}

	var distance *models.Distance
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		// Re-read: another writer may have moved the registration since the gather phase.
		reg, err = s.loadForFinalize(ctx, st, callerID, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != models.StatusStarted && reg.Status != models.StatusSubmitted {
			settled = true
			return nil
		}

		locked, err := capacity.Lock(ctx, st, reg.EditionID, reg.DistanceID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeEventNotFound, "event not found")
			}
			return internal(err, "failed to lock capacity")
		}
		distance = locked.Distances[reg.DistanceID]
		if err := locked.Edition.Window(now).Err(true); err != nil {
			return err
		}

		scope, _ := locked.Scope(reg.DistanceID)
		self := reg.ID
		res, err := capacity.Check(ctx, st, scope, now, 1, &self)
		if err != nil {
			return internal(err, "failed to count reservations")
		}
		if !res.Admitted {
			return dErrors.New(dErrors.CodeSoldOut, "distance is sold out")
		}

		ev := s.settleStatus(reg)
		next, err := reg.Status.Transition(ev)
		if err != nil {
			return err
		}
		expiresAt := s.policy.ExpiresAtFor(now, next)
		if err := st.CompareAndSetStatus(ctx, reg.ID, []models.Status{models.StatusStarted, models.StatusSubmitted}, next, expiresAt, now); err != nil {
			if errors.Is(err, sentinel.ErrStaleState) {
				return dErrors.New(dErrors.CodeInvalidStateTransition, "registration changed while finalizing")
			}
			return internal(err, "failed to finalize registration")
		}
		prior := reg.Status
		reg.Status, reg.ExpiresAt, reg.UpdatedAt = next, expiresAt, now

		return s.appendAudit(ctx, st, audit.EventRegistrationFinalized, reg, map[string]any{
			"from":     string(prior),
			"to":       string(next),
			"scope":    string(scope.Kind),
			"reserved": res.Reserved + 1,
		})
	})
	if err != nil {
		s.metrics.IncrementFinalized(string(dErrors.CodeOf(err)))
		return nil, internal(err, "failed to finalize registration")
	}
	if settled {
		return reg, nil
	}

	s.metrics.IncrementFinalized(string(reg.Status))
	s.logger.InfoContext(ctx, "registration finalized",
		"registration_id", reg.ID,
		"edition_id", reg.EditionID,
		"status", reg.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.sendConfirmation(ctx, reg, gathered.Registrant, distance)
	s.revalidate(ctx, reg.EditionID)
	return reg, nil
}

// loadForFinalize applies ownership, then expiry for every status that has not settled.
func (s *Service) loadForFinalize(ctx context.Context, st ports.Store, callerID, id uuid.UUID) (*models.Registration, error) {
	reg, err := loadOwned(ctx, st, callerID, id)
	if err != nil {
		return nil, err
	}
	if reg.Status == models.StatusConfirmed {
		return reg, nil
	}
	if err := ensureLive(ctx, reg); err != nil {
		return nil, err
	}
	switch reg.Status {
	case models.StatusStarted, models.StatusSubmitted, models.StatusPaymentPending:
		return reg, nil
	}
	return nil, dErrors.Newf(dErrors.CodeInvalidStateTransition, "cannot finalize a %s registration", reg.Status)
}

// sendConfirmation is best effort: finalize has already committed.
func (s *Service) sendConfirmation(ctx context.Context, reg *models.Registration, registrant *models.Registrant, distance *models.Distance) {
	if s.mailer == nil || registrant == nil {
		return
	}
	msg := ports.ConfirmationEmail{
		To:             registrant.Profile.Email,
		FirstName:      registrant.Profile.FirstName,
		RegistrationID: reg.ID,
		EditionID:      reg.EditionID,
		Status:         reg.Status,
		TotalCents:     reg.TotalCents,
	}
	if distance != nil {
		msg.DistanceLabel = distance.Label
	}
	if err := s.mailer.SendRegistrationConfirmation(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "confirmation email failed",
			"registration_id", reg.ID,
			"error", err,
		)
	}
}
