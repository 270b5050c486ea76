package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-platform/internal/ports"
)

// LedgerRepo implements the per-consumer idempotence ledger on top of the
// processed_events table.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

// NewLedgerRepo constructs a new LedgerRepo.
func NewLedgerRepo(pool *pgxpool.Pool) ports.ConsumerLedger {
	return &LedgerRepo{pool: pool}
}

// MarkOnce records (eventID, consumer) and reports whether this is the first
// time the pair was seen. Replays return first=false and must be no-ops for
// the caller.
func (r *LedgerRepo) MarkOnce(ctx context.Context, eventID, consumer string) (bool, error) {
	q := querier(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		INSERT INTO processed_events (event_id, consumer, processed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (event_id, consumer) DO NOTHING
	`, eventID, consumer)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
