package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"idledger/e2e/steps/agent"
	"idledger/e2e/steps/ledger"
)

// InitializeScenario gives every scenario a fresh world and registers all step definitions.
func InitializeScenario(ctx *godog.ScenarioContext) {
	world := NewWorld()
	ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		world.Close()
		return ctx, err
	})

	ledger.RegisterSteps(ctx, world)
	agent.RegisterSteps(ctx, world, Eventually)
}
