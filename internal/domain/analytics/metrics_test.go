package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"delivery-platform/internal/domain/orders"
)

func TestRecompute(t *testing.T) {
	m := &DailyMetrics{
		TotalOrders:     10,
		DeliveredOrders: 8,
		NewCustomers:    3,
		RepeatCustomers: 7,
		GrossRevenue:    orders.NewMoneyFromFloat2(400.00),
	}

	m.Recompute()
	assert.Equal(t, 0.8, m.CompletionRate)
	assert.Equal(t, 0.7, m.RepeatCustomerRate)
	assert.Equal(t, 50.0, m.AvgOrderValue)

	// idempotent: running again changes nothing
	m.Recompute()
	assert.Equal(t, 0.8, m.CompletionRate)
	assert.Equal(t, 50.0, m.AvgOrderValue)
}

func TestRecomputeEmptyDay(t *testing.T) {
	m := &DailyMetrics{}
	m.Recompute()
	assert.Zero(t, m.CompletionRate)
	assert.Zero(t, m.RepeatCustomerRate)
	assert.Zero(t, m.AvgOrderValue)
}

func TestDeltaZero(t *testing.T) {
	assert.True(t, Delta{}.Zero())
	assert.False(t, Delta{TotalOrders: 1}.Zero())
	assert.False(t, Delta{GrossRevenue: 1}.Zero())
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	in := time.Date(2026, 9, 1, 2, 30, 0, 0, loc) // 2026-08-31 21:30 UTC

	got := Day(in)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), got)
}
