package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Status() int
	ErrorCode() (string, error)
	Data(v any) error
	Body() string
}

// RegisterSteps registers response assertions shared by every feature
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the request succeeds with status (\d+)$`, steps.requestSucceeds)
	ctx.Step(`^the request fails with status (\d+) and code "([^"]*)"$`, steps.requestFails)
	ctx.Step(`^the response field "([^"]*)" is "([^"]*)"$`, steps.responseFieldIs)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) requestSucceeds(ctx context.Context, status int) error {
	if s.tc.Status() != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, s.tc.Status(), s.tc.Body())
	}
	return nil
}

func (s *commonSteps) requestFails(ctx context.Context, status int, code string) error {
	if s.tc.Status() != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, s.tc.Status(), s.tc.Body())
	}
	got, err := s.tc.ErrorCode()
	if err != nil {
		return err
	}
	if got != code {
		return fmt.Errorf("expected code %s, got %s", code, got)
	}
	return nil
}

func (s *commonSteps) responseFieldIs(ctx context.Context, field, want string) error {
	var data map[string]any
	if err := s.tc.Data(&data); err != nil {
		return err
	}
	got, ok := data[field]
	if !ok {
		return fmt.Errorf("response has no field %q: %s", field, s.tc.Body())
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s to be %q, got %q", field, want, fmt.Sprint(got))
	}
	return nil
}
