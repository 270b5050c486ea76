package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-platform/internal/ports"
)

// SagaRepo is the step ledger: one row per (correlation_id, step).
type SagaRepo struct {
	pool *pgxpool.Pool
}

// NewSagaRepo constructs a new SagaRepo.
func NewSagaRepo(pool *pgxpool.Pool) ports.SagaRepository {
	return &SagaRepo{pool: pool}
}

// BeginStep claims the step, inserting it as 'begun'. If a row already
// exists, 'applied' returns the persisted output for replay; a stale 'begun'
// or 'compensated' row means the previous run never finished the step, so
// this run retries it.
func (r *SagaRepo) BeginStep(ctx context.Context, correlationID, step string) (ports.SagaStepState, error) {
	q := querier(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		INSERT INTO saga_steps (correlation_id, step, status, applied_at)
		VALUES ($1, $2, 'begun', now())
		ON CONFLICT (correlation_id, step) DO NOTHING
	`, correlationID, step)
	if err != nil {
		return ports.SagaStepState{}, err
	}
	if tag.RowsAffected() == 1 {
		return ports.SagaStepState{First: true}, nil
	}

	var status string
	var output *string
	err = q.QueryRow(ctx, `
		SELECT status, output FROM saga_steps WHERE correlation_id = $1 AND step = $2
	`, correlationID, step).Scan(&status, &output)
	if err != nil {
		return ports.SagaStepState{}, err
	}
	if status != "applied" {
		return ports.SagaStepState{First: true}, nil
	}

	state := ports.SagaStepState{Completed: true}
	if output != nil {
		state.Output = *output
	}
	return state, nil
}

// CompleteStep records the finished forward action and its output.
func (r *SagaRepo) CompleteStep(ctx context.Context, correlationID, step, output string) error {
	q := querier(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE saga_steps SET status = 'applied', output = NULLIF($3, ''), applied_at = now()
		WHERE correlation_id = $1 AND step = $2
	`, correlationID, step, output)
	return err
}

// MarkCompensated records that the step's compensation ran.
func (r *SagaRepo) MarkCompensated(ctx context.Context, correlationID, step string) error {
	q := querier(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE saga_steps SET status = 'compensated' WHERE correlation_id = $1 AND step = $2
	`, correlationID, step)
	return err
}
