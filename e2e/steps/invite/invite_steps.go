package invite

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"raceday/e2e/steps/refs"
	"raceday/internal/registration/models"
	"raceday/internal/registration/store"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Store() *store.InMemoryStore
	Remember(name string, id uuid.UUID)
	Ref(name string) (uuid.UUID, error)
	EnsureUser(email, dateOfBirth string) uuid.UUID
	Request(method, path, email string, body any) error
	InviteToken(email string) (string, error)
	Status() int
	Data(v any) error
	Body() string
}

// RegisterSteps registers invite issuance and claim steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &inviteSteps{tc: tc}

	// Issuance
	ctx.Step(`^organizer "([^"]*)" issues invites for the batch$`, steps.issueInvites)

	// Claim
	ctx.Step(`^runner "([^"]*)" has date of birth "([^"]*)" on file$`, steps.dateOfBirthOnFile)
	ctx.Step(`^runner "([^"]*)" claims their invite$`, steps.claim)
	ctx.Step(`^runner "([^"]*)" claims their invite with date of birth "([^"]*)"$`, steps.claimWithDateOfBirth)

	// Claim assertions
	ctx.Step(`^the profile of "([^"]*)" has date of birth "([^"]*)"$`, steps.profileHasDateOfBirth)
	ctx.Step(`^the profile of "([^"]*)" has no date of birth$`, steps.profileHasNoDateOfBirth)
	ctx.Step(`^runner "([^"]*)" can view their claimed registration$`, steps.canViewClaimed)
}

type inviteSteps struct {
	tc TestContext
}

func (s *inviteSteps) issueInvites(ctx context.Context, organizer string) error {
	batchID, err := s.tc.Ref(refs.Batch)
	if err != nil {
		return err
	}
	if err := s.tc.Request(http.MethodPost, "/group-batches/"+batchID.String()+"/invites", organizer, nil); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("issuing invites failed with %d: %s", s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *inviteSteps) dateOfBirthOnFile(ctx context.Context, email, dateOfBirth string) error {
	id := s.tc.EnsureUser(email, dateOfBirth)
	if p, ok := s.tc.Store().Profile(id); !ok || p.DateOfBirth != dateOfBirth {
		s.tc.Store().SeedUser(models.User{ID: id, Email: email, EmailVerified: true}, dateOfBirth)
	}
	return nil
}

func (s *inviteSteps) claim(ctx context.Context, email string) error {
	return s.sendClaim(email, nil)
}

func (s *inviteSteps) claimWithDateOfBirth(ctx context.Context, email, dateOfBirth string) error {
	return s.sendClaim(email, &dateOfBirth)
}

func (s *inviteSteps) sendClaim(email string, dateOfBirth *string) error {
	token, err := s.tc.InviteToken(email)
	if err != nil {
		return err
	}
	body := map[string]any{"token": token}
	if dateOfBirth != nil {
		body["dateOfBirth"] = *dateOfBirth
	}
	if err := s.tc.Request(http.MethodPost, "/invites/claim", email, body); err != nil {
		return err
	}
	if s.tc.Status() == http.StatusOK {
		var claimed struct {
			RegistrationID uuid.UUID `json:"registrationId"`
		}
		if err := s.tc.Data(&claimed); err != nil {
			return err
		}
		s.tc.Remember(refs.Registration(email), claimed.RegistrationID)
	}
	return nil
}

func (s *inviteSteps) profileHasDateOfBirth(ctx context.Context, email, want string) error {
	p, ok := s.tc.Store().Profile(s.tc.EnsureUser(email, ""))
	if !ok || p.DateOfBirth != want {
		return fmt.Errorf("expected %s to have date of birth %s, got %q", email, want, p.DateOfBirth)
	}
	return nil
}

func (s *inviteSteps) profileHasNoDateOfBirth(ctx context.Context, email string) error {
	p, ok := s.tc.Store().Profile(s.tc.EnsureUser(email, ""))
	if ok && p.DateOfBirth != "" {
		return fmt.Errorf("expected %s to have no date of birth, got %s", email, p.DateOfBirth)
	}
	return nil
}

func (s *inviteSteps) canViewClaimed(ctx context.Context, email string) error {
	id, err := s.tc.Ref(refs.Registration(email))
	if err != nil {
		return err
	}
	if err := s.tc.Request(http.MethodGet, "/registrations/"+id.String(), email, nil); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("viewing the claimed registration failed with %d: %s", s.tc.Status(), s.tc.Body())
	}
	var view struct {
		Registrant *struct {
			Email string `json:"email"`
		} `json:"registrant"`
	}
	if err := s.tc.Data(&view); err != nil {
		return err
	}
	if view.Registrant == nil || view.Registrant.Email != email {
		return fmt.Errorf("claimed registration does not carry %s as registrant: %s", email, s.tc.Body())
	}
	return nil
}
