package group

import (
	"context"
	"fmt"
	"net/http"
	"strings"

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
	Request(method, path, email string, body any) error
	Upload(path, email, filename string, content []byte) error
	Status() int
	Data(v any) error
	Body() string
}

// RegisterSteps registers group batch and discount steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &groupSteps{tc: tc}

	// Discount setup
	ctx.Step(`^the event "([^"]*)" gives (\d+)% off to groups of at least (\d+)$`, steps.discountRule)

	// Batch upload and processing
	ctx.Step(`^organizer "([^"]*)" uploads a group of (\d+) runners for "([^"]*)"$`, steps.uploadGroupOf)
	ctx.Step(`^organizer "([^"]*)" uploads a group for "([^"]*)":$`, steps.uploadGroupTable)
	ctx.Step(`^organizer "([^"]*)" processes the batch$`, steps.processBatch)
	ctx.Step(`^organizer "([^"]*)" has processed a group for "([^"]*)":$`, steps.hasProcessedGroup)

	// Batch assertions
	ctx.Step(`^the batch admitted (\d+) runners$`, steps.batchAdmitted)
	ctx.Step(`^every admitted registration has base price (\d+) cents and fees (\d+) cents$`, steps.everyRegistrationPriced)
}

type groupSteps struct {
	tc TestContext
}

type batchResponse struct {
	ID            uuid.UUID `json:"id"`
	Status        string    `json:"status"`
	AdmittedCount int       `json:"admittedCount"`
	FailureReason string    `json:"failureReason"`
}

func (s *groupSteps) discountRule(ctx context.Context, event string, percentOff, minParticipants int) error {
	editionID, err := s.tc.Ref(refs.Event(event))
	if err != nil {
		return err
	}
	s.tc.Store().SeedDiscountRule(models.GroupDiscountRule{
		ID:              uuid.New(),
		EditionID:       editionID,
		MinParticipants: minParticipants,
		PercentOff:      percentOff,
		IsActive:        true,
	})
	return nil
}

const csvHeader = "firstName,lastName,email,dateOfBirth,distanceLabel\n"

func (s *groupSteps) uploadGroupOf(ctx context.Context, organizer string, size int, label string) error {
	var b strings.Builder
	b.WriteString(csvHeader)
	for i := 0; i < size; i++ {
		fmt.Fprintf(&b, "Runner,No%d,runner%d@example.com,1990-03-%02d,%s\n", i+1, i+1, i+1, label)
	}
	return s.upload(organizer, label, b.String())
}

func (s *groupSteps) uploadGroupTable(ctx context.Context, organizer, label string, table *godog.Table) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("the group table needs a header and at least one runner")
	}
	var b strings.Builder
	for i, row := range table.Rows {
		cells := make([]string, 0, len(row.Cells)+1)
		for _, c := range row.Cells {
			cells = append(cells, c.Value)
		}
		if i == 0 {
			cells = append(cells, "distanceLabel")
		} else {
			cells = append(cells, label)
		}
		b.WriteString(strings.Join(cells, ",") + "\n")
	}
	return s.upload(organizer, label, b.String())
}

func (s *groupSteps) upload(organizer, label, csv string) error {
	editionID, err := s.tc.Ref(refs.EventOf(label))
	if err != nil {
		return err
	}
	if err := s.tc.Upload("/editions/"+editionID.String()+"/group-batches", organizer, "team.csv", []byte(csv)); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusCreated {
		return fmt.Errorf("upload failed with %d: %s", s.tc.Status(), s.tc.Body())
	}
	var batch batchResponse
	if err := s.tc.Data(&batch); err != nil {
		return err
	}
	if batch.Status != string(models.BatchValidated) {
		return fmt.Errorf("expected a validated batch, got %s: %s", batch.Status, s.tc.Body())
	}
	s.tc.Remember(refs.Batch, batch.ID)
	return nil
}

func (s *groupSteps) processBatch(ctx context.Context, organizer string) error {
	batchID, err := s.tc.Ref(refs.Batch)
	if err != nil {
		return err
	}
	return s.tc.Request(http.MethodPost, "/group-batches/"+batchID.String()+"/process", organizer, nil)
}

func (s *groupSteps) hasProcessedGroup(ctx context.Context, organizer, label string, table *godog.Table) error {
	if err := s.uploadGroupTable(ctx, organizer, label, table); err != nil {
		return err
	}
	if err := s.processBatch(ctx, organizer); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("process failed with %d: %s", s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *groupSteps) batchAdmitted(ctx context.Context, admitted int) error {
	var batch batchResponse
	if err := s.tc.Data(&batch); err != nil {
		return err
	}
	if batch.AdmittedCount != admitted {
		return fmt.Errorf("expected %d admitted, got %d: %s", admitted, batch.AdmittedCount, s.tc.Body())
	}
	return nil
}

func (s *groupSteps) everyRegistrationPriced(ctx context.Context, base, fees int64) error {
	regs := s.tc.Store().Registrations()
	if len(regs) == 0 {
		return fmt.Errorf("no registrations were admitted")
	}
	for _, reg := range regs {
		if reg.BasePriceCents != base || reg.FeesCents != fees {
			return fmt.Errorf("registration %s priced %d + %d, want %d + %d",
				reg.ID, reg.BasePriceCents, reg.FeesCents, base, fees)
		}
		if reg.TotalCents != base+fees {
			return fmt.Errorf("registration %s totals %d, want %d", reg.ID, reg.TotalCents, base+fees)
		}
	}
	return nil
}
