//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/cucumber/godog"
)

type scenarioKey struct{}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// initializeScenario gives every scenario its own application and store.
func initializeScenario(ctx *godog.ScenarioContext) {
	tc := &TestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		fresh, err := NewTestContext(ctx)
		if err != nil {
			return ctx, err
		}
		*tc = *fresh
		return context.WithValue(ctx, scenarioKey{}, sc.Name), nil
	})
	ctx.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if tc.server != nil {
			tc.Close()
		}
		return ctx, nil
	})

	RegisterSteps(ctx, tc)
}
