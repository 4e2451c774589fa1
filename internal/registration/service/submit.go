package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/identity"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/requestcontext"
)

// RegistrantInput is the person data submitted for a registration.
type RegistrantInput struct {
	Profile        models.ProfileSnapshot
	Division       *string
	GenderIdentity *string
}

// Normalize trims fields and canonicalizes email and date of birth.
func (in *RegistrantInput) Normalize() {
	p := &in.Profile
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = identity.NormalizeEmail(p.Email)
	p.DateOfBirth = strings.TrimSpace(p.DateOfBirth)
	if dob, ok := identity.ParseISODate(p.DateOfBirth); ok {
		p.DateOfBirth = dob
	}
	p.Phone = strings.TrimSpace(p.Phone)
	in.Division = trimmedOrNil(in.Division)
	in.GenderIdentity = trimmedOrNil(in.GenderIdentity)
}

// Validate checks the required profile fields.
func (in *RegistrantInput) Validate() error {
	p := in.Profile
	if p.FirstName == "" || p.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "first and last name are required")
	}
	if !identity.ValidEmail(p.Email) {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if _, ok := identity.ParseISODate(p.DateOfBirth); !ok {
		return dErrors.New(dErrors.CodeValidation, "dateOfBirth must be YYYY-MM-DD")
	}
	return nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// SubmitRegistrantInfo attaches the registrant and moves started -> submitted.
func (s *Service) SubmitRegistrantInfo(ctx context.Context, callerID, registrationID uuid.UUID, in RegistrantInput) (reg *models.Registration, err error) {
	ctx, span := s.startSpan(ctx, "SubmitRegistrantInfo", attribute.String("registration_id", registrationID.String()))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("submit", time.Now())

	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		reg, err = loadOwned(ctx, st, callerID, registrationID)
		if err != nil {
			return err
		}
		if err := ensureLive(ctx, reg); err != nil {
			return err
		}
		if err := submitGuard(reg.Status); err != nil {
			return err
		}

		user := callerID
		if err := st.UpsertRegistrant(ctx, &models.Registrant{
			ID:             uuid.New(),
			RegistrationID: reg.ID,
			UserID:         &user,
			Profile:        in.Profile,
			Division:       in.Division,
			GenderIdentity: in.GenderIdentity,
			CreatedAt:      now,
			UpdatedAt:      now,
		}); err != nil {
			return internal(err, "failed to save registrant")
		}

		next, err := reg.Status.Transition(models.EventSubmit)
		if err != nil {
			return err
		}
		expiresAt := s.policy.ExpiresAtFor(now, next)
		if err := st.CompareAndSetStatus(ctx, reg.ID, []models.Status{models.StatusStarted}, next, expiresAt, now); err != nil {
			if errors.Is(err, sentinel.ErrStaleState) {
				return dErrors.New(dErrors.CodeAlreadySubmitted, "registrant info was already submitted")
			}
			return internal(err, "failed to submit registration")
		}
		reg.Status, reg.ExpiresAt, reg.UpdatedAt = next, expiresAt, now

		return s.appendAudit(ctx, st, audit.EventRegistrantSubmitted, reg, nil)
	})
	if err != nil {
		return nil, internal(err, "failed to submit registrant info")
	}
	s.revalidate(ctx, reg.EditionID)
	return reg, nil
}

func submitGuard(status models.Status) error {
	switch status {
	case models.StatusStarted:
		return nil
	case models.StatusSubmitted, models.StatusPaymentPending, models.StatusConfirmed:
		return dErrors.New(dErrors.CodeAlreadySubmitted, "registrant info was already submitted")
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "cannot submit a %s registration", status)
}

// WaiverInput is one waiver acceptance.
type WaiverInput struct {
	WaiverID       uuid.UUID
	SignatureType  models.SignatureType
	SignatureValue *string
}

// AcceptWaiver records acceptance of the waiver's current version. Accepting an
// already-accepted waiver returns the original acceptance.
func (s *Service) AcceptWaiver(ctx context.Context, callerID, registrationID uuid.UUID, in WaiverInput) (acc *models.WaiverAcceptance, err error) {
	ctx, span := s.startSpan(ctx, "AcceptWaiver",
		attribute.String("registration_id", registrationID.String()),
		attribute.String("waiver_id", in.WaiverID.String()),
	)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	var (
		reg     *models.Registration
		created bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		reg, err = loadOwned(ctx, st, callerID, registrationID)
		if err != nil {
			return err
		}
		if err := ensureLive(ctx, reg); err != nil {
			return err
		}

		waiver, err := st.GetWaiver(ctx, in.WaiverID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "waiver not found")
			}
			return internal(err, "failed to load waiver")
		}
		if waiver.EditionID != reg.EditionID {
			return dErrors.New(dErrors.CodeNotFound, "waiver not found")
		}
		value, err := checkSignature(waiver, in)
		if err != nil {
			return err
		}

		existing, err := st.ListWaiverAcceptances(ctx, reg.ID)
		if err != nil {
			return internal(err, "failed to load waiver acceptances")
		}
		for _, a := range existing {
			if a.WaiverID == waiver.ID {
				acc = a
				return nil
			}
		}

		if reg.Status != models.StatusStarted && reg.Status != models.StatusSubmitted {
			return dErrors.Newf(dErrors.CodeInvalidState, "cannot accept waivers on a %s registration", reg.Status)
		}

		rawUA := requestcontext.UserAgent(ctx)
		acc = &models.WaiverAcceptance{
			ID:                uuid.New(),
			RegistrationID:    reg.ID,
			WaiverID:          waiver.ID,
			WaiverVersionHash: waiver.VersionHash,
			SignatureType:     waiver.SignatureType,
			SignatureValue:    value,
			IPAddress:         requestcontext.ClientIP(ctx),
			UserAgent:         rawUA,
			UserAgentSummary:  summarizeUserAgent(rawUA),
			AcceptedAt:        now,
		}
		created, err = st.InsertWaiverAcceptance(ctx, acc)
		if err != nil {
			return internal(err, "failed to record waiver acceptance")
		}
		if !created {
			// Lost a race with a concurrent accept of the same waiver.
			existing, err := st.ListWaiverAcceptances(ctx, reg.ID)
			if err != nil {
				return internal(err, "failed to load waiver acceptances")
			}
			for _, a := range existing {
				if a.WaiverID == waiver.ID {
					acc = a
				}
			}
			return nil
		}
		return s.appendAudit(ctx, st, audit.EventWaiverAccepted, reg, map[string]any{
			"waiver_id":    waiver.ID.String(),
			"version_hash": waiver.VersionHash,
		})
	})
	if err != nil {
		return nil, internal(err, "failed to accept waiver")
	}
	if created {
		s.revalidate(ctx, reg.EditionID)
	}
	return acc, nil
}

// checkSignature enforces the waiver's signature type. Typed signatures need a
// non-blank value; checkbox acceptances never store one.
func checkSignature(w *models.Waiver, in WaiverInput) (*string, error) {
	if in.SignatureType != w.SignatureType {
		return nil, dErrors.Newf(dErrors.CodeValidation, "waiver requires a %s signature", w.SignatureType)
	}
	if !w.SignatureType.RequiresValue() {
		return nil, nil
	}
	value := trimmedOrNil(in.SignatureValue)
	if value == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "signature value is required")
	}
	return value, nil
}

// AnswerQuestion stores or replaces the answer to a registration question.
func (s *Service) AnswerQuestion(ctx context.Context, callerID, registrationID, questionID uuid.UUID, value string) (ans *models.Answer, err error) {
	ctx, span := s.startSpan(ctx, "AnswerQuestion", attribute.String("registration_id", registrationID.String()))
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	value = strings.TrimSpace(value)
	var reg *models.Registration
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		reg, err = loadOwned(ctx, st, callerID, registrationID)
		if err != nil {
			return err
		}
		if err := ensureLive(ctx, reg); err != nil {
			return err
		}
		if reg.Status != models.StatusStarted && reg.Status != models.StatusSubmitted {
			return dErrors.Newf(dErrors.CodeInvalidState, "cannot answer questions on a %s registration", reg.Status)
		}

		q, err := st.GetQuestion(ctx, questionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "question not found")
			}
			return internal(err, "failed to load question")
		}
		if q.EditionID != reg.EditionID {
			return dErrors.New(dErrors.CodeNotFound, "question not found")
		}
		if !q.AppliesTo(reg.DistanceID) {
			return dErrors.New(dErrors.CodeValidation, "question does not apply to this registration")
		}
		if q.IsRequired && value == "" {
			return dErrors.New(dErrors.CodeValidation, "answer is required")
		}

		ans = &models.Answer{ID: uuid.New(), RegistrationID: reg.ID, QuestionID: q.ID, Value: value, UpdatedAt: now}
		if err := st.UpsertAnswer(ctx, ans); err != nil {
			return internal(err, "failed to save answer")
		}
		return s.appendAudit(ctx, st, audit.EventQuestionAnswered, reg, map[string]any{
			"question_id": q.ID.String(),
		})
	})
	if err != nil {
		return nil, internal(err, "failed to answer question")
	}
	s.revalidate(ctx, reg.EditionID)
	return ans, nil
}
