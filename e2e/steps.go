package e2e

import (
	"github.com/cucumber/godog"

	"raceday/e2e/steps/common"
	"raceday/e2e/steps/group"
	"raceday/e2e/steps/invite"
	"raceday/e2e/steps/registration"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (status and envelope assertions)
	common.RegisterSteps(ctx, tc)

	// Register event setup and single registration steps
	registration.RegisterSteps(ctx, tc)

	// Register group batch steps
	group.RegisterSteps(ctx, tc)

	// Register invite claim steps
	invite.RegisterSteps(ctx, tc)
}
