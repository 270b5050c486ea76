package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-platform/internal/domain/events"
	"delivery-platform/internal/ports"
)

// EventsRepo is the outbox: append-only order_events plus the queries the
// relay, the reconciler, and external collaborators need.
type EventsRepo struct {
	pool *pgxpool.Pool
}

// NewEventsRepo constructs a new EventsRepo.
func NewEventsRepo(pool *pgxpool.Pool) ports.EventRepository {
	return &EventsRepo{pool: pool}
}

// Append inserts the event row. Called inside the same unit of work as the
// state write; it never commits independently of that transaction.
func (r *EventsRepo) Append(ctx context.Context, ev *events.OrderEvent) error {
	q := querier(ctx, r.pool)

	err := q.QueryRow(ctx, `
		INSERT INTO order_events (event_id, order_id, event_type, payload, event_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		ev.EventID, ev.OrderID, ev.Type, ev.Payload, ev.EventTime,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	return nil
}

// FetchUnpublished returns up to limit rows that the relay has not forwarded
// yet, ordered so per-order event order is preserved.
func (r *EventsRepo) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxEntry, error) {
	q := querier(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT e.id, e.event_id, e.order_id, e.event_type, e.payload, e.event_time, e.processed,
		       o.number, o.correlation_id
		FROM order_events e
		JOIN orders o ON o.id = e.order_id
		WHERE e.published_at IS NULL
		ORDER BY e.order_id ASC, e.event_time ASC, e.id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.OutboxEntry
	for rows.Next() {
		var entry ports.OutboxEntry
		if err := rows.Scan(
			&entry.Event.ID, &entry.Event.EventID, &entry.Event.OrderID, &entry.Event.Type,
			&entry.Event.Payload, &entry.Event.EventTime, &entry.Event.Processed,
			&entry.OrderNumber, &entry.CorrelationID,
		); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// MarkPublished stamps a forwarded outbox row.
func (r *EventsRepo) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	q := querier(ctx, r.pool)
	_, err := q.Exec(ctx, `UPDATE order_events SET published_at = $2 WHERE id = $1`, id, at)
	return err
}

// UnprocessedPage returns the oldest events the analytics side has not
// aggregated yet, bounded to one reconciliation page.
func (r *EventsRepo) UnprocessedPage(ctx context.Context, limit int) ([]events.OrderEvent, error) {
	q := querier(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id, event_id, order_id, event_type, payload, event_time, processed, published_at
		FROM order_events
		WHERE NOT processed
		ORDER BY event_time ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkProcessed flags an event as aggregated.
func (r *EventsRepo) MarkProcessed(ctx context.Context, eventID string) error {
	q := querier(ctx, r.pool)
	_, err := q.Exec(ctx, `UPDATE order_events SET processed = true WHERE event_id = $1`, eventID)
	return err
}

// UnprocessedCountBetween reports the backlog for a time window; the daily
// finalizer uses it as its settlement fence.
func (r *EventsRepo) UnprocessedCountBetween(ctx context.Context, from, to time.Time) (int64, error) {
	q := querier(ctx, r.pool)

	var n int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_events
		WHERE NOT processed AND event_time >= $1 AND event_time < $2
	`, from, to).Scan(&n)
	return n, err
}

// ByOrder returns an order's events in time order.
func (r *EventsRepo) ByOrder(ctx context.Context, orderID int64) ([]events.OrderEvent, error) {
	q := querier(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id, event_id, order_id, event_type, payload, event_time, processed, published_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY event_time ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountSince counts events of one type emitted at or after the timestamp.
func (r *EventsRepo) CountSince(ctx context.Context, eventType string, since time.Time) (int64, error) {
	q := querier(ctx, r.pool)

	var n int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_events WHERE event_type = $1 AND event_time >= $2
	`, eventType, since).Scan(&n)
	return n, err
}

// DeleteProcessedBefore purges aggregated events older than the cutoff.
// Unprocessed rows survive regardless of age.
func (r *EventsRepo) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := querier(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		DELETE FROM order_events WHERE processed AND event_time < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountCustomerOrdersBefore counts the customer's created orders strictly
// before the timestamp; used to tell new from repeat customers. It reads
// the orders table, which the retention purge never touches, so old
// customers keep counting as repeat after their events age out.
func (r *EventsRepo) CountCustomerOrdersBefore(ctx context.Context, customerID string, before time.Time) (int64, error) {
	q := querier(ctx, r.pool)

	var n int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders WHERE customer_id = $1 AND created_at < $2
	`, customerID, before).Scan(&n)
	return n, err
}

func scanEvents(rows pgx.Rows) ([]events.OrderEvent, error) {
	var out []events.OrderEvent
	for rows.Next() {
		var ev events.OrderEvent
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.OrderID, &ev.Type, &ev.Payload, &ev.EventTime, &ev.Processed, &ev.PublishedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
