package saga

import (
	"context"
	"fmt"

	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
)

// Step is one forward action with its compensation. Forward returns an
// output string that is persisted with the step; on replay of a completed
// step, Restore receives that output so later steps see the same in-memory
// state the original run had. Restore and Compensate may be nil.
type Step struct {
	Name       string
	Forward    func(ctx context.Context) (output string, err error)
	Restore    func(output string)
	Compensate func(ctx context.Context) error
}

// Coordinator executes multi-step flows with compensation on failure. Steps
// are keyed (correlation id, step name) in a persistent ledger; a step is
// recorded as completed only after its forward action returns, so a crash
// mid-step hands the step back to the next run instead of skipping it.
type Coordinator struct {
	repo   ports.SagaRepository
	logger *logger.Logger
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(repo ports.SagaRepository, log *logger.Logger) *Coordinator {
	return &Coordinator{repo: repo, logger: log}
}

// Execute runs the steps in order. On a forward failure it compensates the
// applied steps in reverse and returns the original failure. Steps already
// completed for this correlation id are skipped after restoring their
// persisted outputs.
func (c *Coordinator) Execute(ctx context.Context, correlationID string, steps []Step) error {
	ctx = c.logger.WithCorrelationID(ctx, correlationID)

	var applied []Step
	for _, step := range steps {
		state, err := c.repo.BeginStep(ctx, correlationID, step.Name)
		if err != nil {
			c.compensate(ctx, correlationID, applied)
			return fmt.Errorf("saga step %s: ledger: %w", step.Name, err)
		}
		if state.Completed {
			if step.Restore != nil {
				step.Restore(state.Output)
			}
			c.logger.Debug(ctx, "step_skipped", "Step already applied: "+step.Name, nil)
			applied = append(applied, step)
			continue
		}

		output, err := step.Forward(ctx)
		if err != nil {
			c.logger.Error(ctx, "step_failed", "Step failed: "+step.Name, err)
			// the failed step may have partial effects; its own
			// compensation runs first, then the earlier ones in reverse
			c.compensate(ctx, correlationID, append(applied, step))
			return fmt.Errorf("saga step %s: %w", step.Name, err)
		}
		if err := c.repo.CompleteStep(ctx, correlationID, step.Name, output); err != nil {
			c.logger.Error(ctx, "step_failed", "Failed to record step: "+step.Name, err)
			c.compensate(ctx, correlationID, append(applied, step))
			return fmt.Errorf("saga step %s: ledger: %w", step.Name, err)
		}

		c.logger.Info(ctx, "step_applied", "Step applied: "+step.Name, nil)
		applied = append(applied, step)
	}
	return nil
}

// compensate undoes steps last-to-first. A failing compensation is logged
// and the rest still run; its ledger row keeps its status for inspection.
func (c *Coordinator) compensate(ctx context.Context, correlationID string, applied []Step) {
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		if step.Compensate != nil {
			if err := step.Compensate(ctx); err != nil {
				c.logger.Error(ctx, "compensation_failed", "Compensation failed: "+step.Name, err)
				continue
			}
		}
		if err := c.repo.MarkCompensated(ctx, correlationID, step.Name); err != nil {
			c.logger.Error(ctx, "compensation_failed", "Failed to record compensation: "+step.Name, err)
		}
	}
}
