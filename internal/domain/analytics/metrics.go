package analytics

import (
	"time"

	"delivery-platform/internal/domain/orders"
)

// DailyMetrics is the mutable aggregate keyed by date. Counters accumulate
// from processed events; derived rates are recomputed by the daily
// finalization and are safe to recompute any number of times.
type DailyMetrics struct {
	Date time.Time // midnight UTC

	TotalOrders     int64
	DeliveredOrders int64
	CancelledOrders int64
	FailedOrders    int64

	NewCustomers    int64
	RepeatCustomers int64

	GrossRevenue orders.Money // delivered orders only

	CompletionRate     float64
	RepeatCustomerRate float64
	AvgOrderValue      float64

	Finalized bool
	UpdatedAt time.Time
}

// Delta is one event's contribution to the counters. Deltas are commutative,
// so arrival order beyond per-order causality does not matter.
type Delta struct {
	TotalOrders     int64
	DeliveredOrders int64
	CancelledOrders int64
	FailedOrders    int64
	NewCustomers    int64
	RepeatCustomers int64
	GrossRevenue    orders.Money
}

// Zero reports whether the delta contributes nothing.
func (d Delta) Zero() bool { return d == Delta{} }

// Recompute derives the rates from the accumulated counters. Idempotent:
// re-running after a partial failure yields the same result.
func (m *DailyMetrics) Recompute() {
	if m.TotalOrders > 0 {
		m.CompletionRate = float64(m.DeliveredOrders) / float64(m.TotalOrders)
	} else {
		m.CompletionRate = 0
	}
	customers := m.NewCustomers + m.RepeatCustomers
	if customers > 0 {
		m.RepeatCustomerRate = float64(m.RepeatCustomers) / float64(customers)
	} else {
		m.RepeatCustomerRate = 0
	}
	if m.DeliveredOrders > 0 {
		m.AvgOrderValue = m.GrossRevenue.ToFloat2() / float64(m.DeliveredOrders)
	} else {
		m.AvgOrderValue = 0
	}
}

// Day truncates t to its metric date (midnight UTC).
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
