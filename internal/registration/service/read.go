package service

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"raceday/internal/registration/hold"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/pkg/requestcontext"
)

// RegistrationView is a registration with what it still needs before finalize.
type RegistrationView struct {
	Registration     *models.Registration
	Registrant       *models.Registrant
	PendingWaivers   []*models.Waiver
	MissingQuestions []*models.Question
	// Expired is derived from expiresAt; the stored status may still read provisional.
	Expired bool
}

// Complete reports whether finalize's completeness checks would pass.
func (v *RegistrationView) Complete() bool {
	return v.Registrant != nil && len(v.PendingWaivers) == 0 && len(v.MissingQuestions) == 0
}

// GetRegistration returns the caller's registration and its completeness. Lapsed holds
// are readable.
func (s *Service) GetRegistration(ctx context.Context, callerID, registrationID uuid.UUID) (view *RegistrationView, err error) {
	ctx, span := s.startSpan(ctx, "GetRegistration", attribute.String("registration_id", registrationID.String()))
	defer func() { endSpan(span, err) }()

	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		reg, err := loadOwned(ctx, st, callerID, registrationID)
		if err != nil {
			return err
		}
		c, err := gatherCompleteness(ctx, st, reg)
		if err != nil {
			return err
		}
		view = &RegistrationView{
			Registration:     reg,
			Registrant:       c.Registrant,
			PendingWaivers:   c.PendingWaivers,
			MissingQuestions: c.MissingQuestions,
			Expired:          hold.IsLapsed(reg, requestcontext.Now(ctx)),
		}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to load registration")
	}
	return view, nil
}
