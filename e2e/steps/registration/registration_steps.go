package registration

import (
	"context"
	"fmt"
	"net/http"
	"time"

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
	Status() int
	Data(v any) error
	Body() string
}

// RegisterSteps registers event setup and single registration steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrationSteps{tc: tc}

	// Event setup
	ctx.Step(`^a published event "([^"]*)" with a "([^"]*)" distance limited to (\d+) runners? at (\d+) cents$`, steps.publishedEvent)
	ctx.Step(`^organizer "([^"]*)" manages "([^"]*)"$`, steps.organizerManages)

	// Single registration flow
	ctx.Step(`^runner "([^"]*)" starts a registration for "([^"]*)"$`, steps.startRegistration)
	ctx.Step(`^runner "([^"]*)" has started a registration for "([^"]*)"$`, steps.hasStartedRegistration)
	ctx.Step(`^runner "([^"]*)" submits registrant details born "([^"]*)"$`, steps.submitRegistrant)
	ctx.Step(`^runner "([^"]*)" finalizes their registration$`, steps.finalize)
	ctx.Step(`^runner "([^"]*)" views the registration of "([^"]*)"$`, steps.viewRegistrationOf)

	// Availability assertions
	ctx.Step(`^the "([^"]*)" distance has (\d+) remaining slots?$`, steps.distanceHasRemaining)
}

type registrationSteps struct {
	tc TestContext
}

func (s *registrationSteps) publishedEvent(ctx context.Context, name, label string, limit int, priceCents int64) error {
	edition := models.Edition{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           name,
		Visibility:     models.VisibilityPublished,
		CreatedAt:      time.Now().Add(-24 * time.Hour),
	}
	distanceID := uuid.New()
	distance := models.Distance{
		ID:            distanceID,
		EditionID:     edition.ID,
		Label:         label,
		Capacity:      &limit,
		CapacityScope: models.ScopePerDistance,
		PricingTiers:  []models.PricingTier{{ID: uuid.New(), DistanceID: distanceID, Label: "Standard", PriceCents: priceCents}},
	}
	s.tc.Store().SeedEdition(edition)
	s.tc.Store().SeedDistance(distance)
	s.tc.Remember(refs.Event(name), edition.ID)
	s.tc.Remember(refs.Organization(name), edition.OrganizationID)
	s.tc.Remember(refs.Distance(label), distance.ID)
	s.tc.Remember(refs.EventOf(label), edition.ID)
	return nil
}

func (s *registrationSteps) organizerManages(ctx context.Context, email, event string) error {
	orgID, err := s.tc.Ref(refs.Organization(event))
	if err != nil {
		return err
	}
	s.tc.Store().SeedMembership(orgID, s.tc.EnsureUser(email, ""), "admin")
	return nil
}

func (s *registrationSteps) startRegistration(ctx context.Context, email, label string) error {
	distanceID, err := s.tc.Ref(refs.Distance(label))
	if err != nil {
		return err
	}
	if err := s.tc.Request(http.MethodPost, "/registrations", email, map[string]string{"distanceId": distanceID.String()}); err != nil {
		return err
	}
	if s.tc.Status() == http.StatusCreated {
		var reg struct {
			ID uuid.UUID `json:"id"`
		}
		if err := s.tc.Data(&reg); err != nil {
			return err
		}
		s.tc.Remember(refs.Registration(email), reg.ID)
	}
	return nil
}

func (s *registrationSteps) hasStartedRegistration(ctx context.Context, email, label string) error {
	if err := s.startRegistration(ctx, email, label); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusCreated {
		return fmt.Errorf("start for %s failed with %d: %s", email, s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *registrationSteps) submitRegistrant(ctx context.Context, email, dateOfBirth string) error {
	id, err := s.tc.Ref(refs.Registration(email))
	if err != nil {
		return err
	}
	return s.tc.Request(http.MethodPost, "/registrations/"+id.String()+"/registrant", email, map[string]string{
		"firstName":   "Runner",
		"lastName":    "Example",
		"email":       email,
		"dateOfBirth": dateOfBirth,
	})
}

func (s *registrationSteps) finalize(ctx context.Context, email string) error {
	id, err := s.tc.Ref(refs.Registration(email))
	if err != nil {
		return err
	}
	return s.tc.Request(http.MethodPost, "/registrations/"+id.String()+"/finalize", email, nil)
}

func (s *registrationSteps) viewRegistrationOf(ctx context.Context, email, owner string) error {
	id, err := s.tc.Ref(refs.Registration(owner))
	if err != nil {
		return err
	}
	return s.tc.Request(http.MethodGet, "/registrations/"+id.String(), email, nil)
}

func (s *registrationSteps) distanceHasRemaining(ctx context.Context, label string, remaining int) error {
	distanceID, err := s.tc.Ref(refs.Distance(label))
	if err != nil {
		return err
	}
	if err := s.tc.Request(http.MethodGet, "/distances/"+distanceID.String()+"/availability", "", nil); err != nil {
		return err
	}
	var availability struct {
		Remaining *int `json:"remaining"`
		SoldOut   bool `json:"soldOut"`
	}
	if err := s.tc.Data(&availability); err != nil {
		return err
	}
	if availability.Remaining == nil || *availability.Remaining != remaining {
		return fmt.Errorf("expected %d remaining slots: %s", remaining, s.tc.Body())
	}
	if availability.SoldOut != (remaining == 0) {
		return fmt.Errorf("sold out flag disagrees with %d remaining: %s", remaining, s.tc.Body())
	}
	return nil
}
