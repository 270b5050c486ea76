package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-platform/internal/domain/analytics"
	"delivery-platform/internal/ports"
)

// MetricsRepo persists the daily_metrics aggregate. Counter accumulation is
// a single upsert so concurrent consumers never lose increments.
type MetricsRepo struct {
	pool *pgxpool.Pool
}

// NewMetricsRepo constructs a new MetricsRepo.
func NewMetricsRepo(pool *pgxpool.Pool) ports.MetricsRepository {
	return &MetricsRepo{pool: pool}
}

// Accumulate adds one event's delta to the day row, creating it on first use.
func (r *MetricsRepo) Accumulate(ctx context.Context, day time.Time, d analytics.Delta) error {
	if d.Zero() {
		return nil
	}
	q := querier(ctx, r.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO daily_metrics
		    (metric_date, total_orders, delivered_orders, cancelled_orders, failed_orders,
		     new_customers, repeat_customers, gross_revenue, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric/100, now())
		ON CONFLICT (metric_date) DO UPDATE SET
		    total_orders     = daily_metrics.total_orders     + EXCLUDED.total_orders,
		    delivered_orders = daily_metrics.delivered_orders + EXCLUDED.delivered_orders,
		    cancelled_orders = daily_metrics.cancelled_orders + EXCLUDED.cancelled_orders,
		    failed_orders    = daily_metrics.failed_orders    + EXCLUDED.failed_orders,
		    new_customers    = daily_metrics.new_customers    + EXCLUDED.new_customers,
		    repeat_customers = daily_metrics.repeat_customers + EXCLUDED.repeat_customers,
		    gross_revenue    = daily_metrics.gross_revenue    + EXCLUDED.gross_revenue,
		    updated_at       = now()
	`, analytics.Day(day),
		d.TotalOrders, d.DeliveredOrders, d.CancelledOrders, d.FailedOrders,
		d.NewCustomers, d.RepeatCustomers, int64(d.GrossRevenue),
	)
	return err
}

// Get returns the day's aggregate, or nil when no events landed on that day.
func (r *MetricsRepo) Get(ctx context.Context, day time.Time) (*analytics.DailyMetrics, error) {
	q := querier(ctx, r.pool)

	var m analytics.DailyMetrics
	err := q.QueryRow(ctx, `
		SELECT metric_date, total_orders, delivered_orders, cancelled_orders, failed_orders,
		       new_customers, repeat_customers, (gross_revenue*100)::bigint,
		       completion_rate, repeat_customer_rate, avg_order_value, finalized, updated_at
		FROM daily_metrics
		WHERE metric_date = $1
	`, analytics.Day(day)).Scan(
		&m.Date, &m.TotalOrders, &m.DeliveredOrders, &m.CancelledOrders, &m.FailedOrders,
		&m.NewCustomers, &m.RepeatCustomers, &m.GrossRevenue,
		&m.CompletionRate, &m.RepeatCustomerRate, &m.AvgOrderValue, &m.Finalized, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveFinal writes the recomputed rates and flags the day finalized.
func (r *MetricsRepo) SaveFinal(ctx context.Context, m *analytics.DailyMetrics) error {
	q := querier(ctx, r.pool)

	_, err := q.Exec(ctx, `
		UPDATE daily_metrics
		SET completion_rate = $2, repeat_customer_rate = $3, avg_order_value = $4,
		    finalized = true, updated_at = now()
		WHERE metric_date = $1
	`, analytics.Day(m.Date), m.CompletionRate, m.RepeatCustomerRate, m.AvgOrderValue)
	return err
}

// UnfinalizedDaysBefore lists day rows still awaiting finalization.
func (r *MetricsRepo) UnfinalizedDaysBefore(ctx context.Context, before time.Time) ([]time.Time, error) {
	q := querier(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT metric_date FROM daily_metrics
		WHERE NOT finalized AND metric_date < $1
		ORDER BY metric_date ASC
	`, analytics.Day(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
