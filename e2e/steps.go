// Package e2e runs the Gherkin scenarios in features/ against a running
// kycflow server.
package e2e

import (
	"github.com/cucumber/godog"

	"kycflow/e2e/steps/common"
	"kycflow/e2e/steps/flow"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *common.TestContext) {
	// requests, status and body assertions
	common.RegisterSteps(ctx, tc)

	// flow lifecycle
	flow.RegisterSteps(ctx, tc)
}
