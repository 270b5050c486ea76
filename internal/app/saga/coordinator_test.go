package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
)

type stepRow struct {
	status string
	output string
}

type fakeSagaRepo struct {
	steps    map[string]stepRow // "corr/step" -> row
	beginErr error
}

func newFakeSagaRepo() *fakeSagaRepo { return &fakeSagaRepo{steps: map[string]stepRow{}} }

func (f *fakeSagaRepo) BeginStep(ctx context.Context, correlationID, step string) (ports.SagaStepState, error) {
	if f.beginErr != nil {
		return ports.SagaStepState{}, f.beginErr
	}
	key := correlationID + "/" + step
	if row, ok := f.steps[key]; ok {
		if row.status == "applied" {
			return ports.SagaStepState{Completed: true, Output: row.output}, nil
		}
		return ports.SagaStepState{First: true}, nil
	}
	f.steps[key] = stepRow{status: "begun"}
	return ports.SagaStepState{First: true}, nil
}

func (f *fakeSagaRepo) CompleteStep(ctx context.Context, correlationID, step, output string) error {
	f.steps[correlationID+"/"+step] = stepRow{status: "applied", output: output}
	return nil
}

func (f *fakeSagaRepo) MarkCompensated(ctx context.Context, correlationID, step string) error {
	row := f.steps[correlationID+"/"+step]
	row.status = "compensated"
	f.steps[correlationID+"/"+step] = row
	return nil
}

func step(name string, trace *[]string, forwardErr error) Step {
	return Step{
		Name: name,
		Forward: func(ctx context.Context) (string, error) {
			if forwardErr != nil {
				return "", forwardErr
			}
			*trace = append(*trace, "forward:"+name)
			return "out:" + name, nil
		},
		Compensate: func(ctx context.Context) error {
			*trace = append(*trace, "undo:"+name)
			return nil
		},
	}
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	repo := newFakeSagaRepo()
	c := NewCoordinator(repo, logger.NewLogger("saga-test"))

	var trace []string
	err := c.Execute(context.Background(), "corr-1", []Step{
		step("a", &trace, nil),
		step("b", &trace, nil),
		step("c", &trace, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"forward:a", "forward:b", "forward:c"}, trace)
	assert.Equal(t, stepRow{status: "applied", output: "out:c"}, repo.steps["corr-1/c"])
}

func TestExecuteCompensatesInReverseOrder(t *testing.T) {
	repo := newFakeSagaRepo()
	c := NewCoordinator(repo, logger.NewLogger("saga-test"))

	var trace []string
	boom := errors.New("payment declined")
	err := c.Execute(context.Background(), "corr-1", []Step{
		step("a", &trace, nil),
		step("b", &trace, nil),
		step("c", &trace, boom),
	})
	require.ErrorIs(t, err, boom)

	// the failed step compensates first, then the applied ones backwards
	assert.Equal(t, []string{"forward:a", "forward:b", "undo:c", "undo:b", "undo:a"}, trace)
	assert.Equal(t, "compensated", repo.steps["corr-1/a"].status)
	assert.Equal(t, "compensated", repo.steps["corr-1/b"].status)
}

func TestExecuteReplaySkipsAppliedSteps(t *testing.T) {
	repo := newFakeSagaRepo()
	c := NewCoordinator(repo, logger.NewLogger("saga-test"))

	var trace []string
	require.NoError(t, c.Execute(context.Background(), "corr-1", []Step{
		step("a", &trace, nil),
		step("b", &trace, nil),
	}))

	// replay after a crash: every step is already completed in the ledger
	trace = nil
	require.NoError(t, c.Execute(context.Background(), "corr-1", []Step{
		step("a", &trace, nil),
		step("b", &trace, nil),
	}))
	assert.Empty(t, trace)
}

func TestExecuteReplayRestoresStepOutputs(t *testing.T) {
	repo := newFakeSagaRepo()
	repo.steps["corr-1/a"] = stepRow{status: "applied", output: "res-42"}
	c := NewCoordinator(repo, logger.NewLogger("saga-test"))

	var restored, seen string
	err := c.Execute(context.Background(), "corr-1", []Step{
		{
			Name:    "a",
			Forward: func(ctx context.Context) (string, error) { return "never", nil },
			Restore: func(output string) { restored = output },
		},
		{
			Name: "b",
			Forward: func(ctx context.Context) (string, error) {
				seen = restored
				return "", nil
			},
		},
	})
	require.NoError(t, err)

	// step b observes the output step a persisted before the crash
	assert.Equal(t, "res-42", restored)
	assert.Equal(t, "res-42", seen)
}

func TestExecuteRerunsStepBegunButNeverCompleted(t *testing.T) {
	repo := newFakeSagaRepo()
	// the previous run crashed between BeginStep and CompleteStep
	repo.steps["corr-1/a"] = stepRow{status: "begun"}
	c := NewCoordinator(repo, logger.NewLogger("saga-test"))

	var trace []string
	require.NoError(t, c.Execute(context.Background(), "corr-1", []Step{
		step("a", &trace, nil),
		step("b", &trace, nil),
	}))

	assert.Equal(t, []string{"forward:a", "forward:b"}, trace)
	assert.Equal(t, "applied", repo.steps["corr-1/a"].status)
}

func TestExecutePartialReplayResumesWhereItStopped(t *testing.T) {
	repo := newFakeSagaRepo()
	c := NewCoordinator(repo, logger.NewLogger("saga-test"))

	// first run: only step a completed before the crash
	repo.steps["corr-1/a"] = stepRow{status: "applied"}

	var trace []string
	require.NoError(t, c.Execute(context.Background(), "corr-1", []Step{
		step("a", &trace, nil),
		step("b", &trace, nil),
	}))

	assert.Equal(t, []string{"forward:b"}, trace)
}

func TestExecuteLedgerErrorCompensatesApplied(t *testing.T) {
	repo := newFakeSagaRepo()
	c := NewCoordinator(repo, logger.NewLogger("saga-test"))

	var trace []string
	steps := []Step{step("a", &trace, nil), step("b", &trace, nil)}

	// fail the ledger on the second step
	first := steps[0]
	steps[0] = Step{Name: first.Name, Forward: func(ctx context.Context) (string, error) {
		repo.beginErr = errors.New("db down") // trips on the next BeginStep
		return first.Forward(ctx)
	}, Compensate: first.Compensate}

	err := c.Execute(context.Background(), "corr-1", steps)
	require.Error(t, err)
	assert.Equal(t, []string{"forward:a", "undo:a"}, trace)
}
