package ports

import (
	"context"
	"time"

	"delivery-platform/internal/domain/analytics"
	"delivery-platform/internal/domain/events"
	"delivery-platform/internal/domain/notifications"
	"delivery-platform/internal/domain/orders"
)

// UnitOfWork wraps a function in a DB transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists the aggregate. UpdateCAS applies the mutation only
// if the stored version still equals expectedVersion; applied=false means a
// concurrent writer won and the caller must surface a version conflict.
type OrderRepository interface {
	Create(ctx context.Context, o *orders.Order) error
	GetByNumber(ctx context.Context, number string) (*orders.Order, error)
	UpdateCAS(ctx context.Context, o *orders.Order, expectedVersion int64) (applied bool, err error)
	NextOrderSeq(ctx context.Context, day time.Time) (int64, error)
}

// OutboxEntry joins an unpublished event with the order fields the wire
// message needs.
type OutboxEntry struct {
	Event         events.OrderEvent
	OrderNumber   string
	CorrelationID string
}

// EventRepository is the outbox plus the queries exposed to collaborators.
// Append MUST run inside the same transaction as the state write.
type EventRepository interface {
	Append(ctx context.Context, ev *events.OrderEvent) error

	// publisher side
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error

	// consumer / reconciler side
	UnprocessedPage(ctx context.Context, limit int) ([]events.OrderEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	UnprocessedCountBetween(ctx context.Context, from, to time.Time) (int64, error)

	// collaborator queries
	ByOrder(ctx context.Context, orderID int64) ([]events.OrderEvent, error)
	CountSince(ctx context.Context, eventType string, since time.Time) (int64, error)
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountCustomerOrdersBefore(ctx context.Context, customerID string, before time.Time) (int64, error)
}

// ConsumerLedger makes event consumption idempotent per (eventID, consumer).
// MarkOnce returns first=false when the pair was already recorded.
type ConsumerLedger interface {
	MarkOnce(ctx context.Context, eventID, consumer string) (first bool, err error)
}

// MetricsRepository accumulates and finalizes the daily aggregates.
type MetricsRepository interface {
	Accumulate(ctx context.Context, day time.Time, d analytics.Delta) error
	Get(ctx context.Context, day time.Time) (*analytics.DailyMetrics, error)
	SaveFinal(ctx context.Context, m *analytics.DailyMetrics) error
	UnfinalizedDaysBefore(ctx context.Context, before time.Time) ([]time.Time, error)
}

// DeliveryStat is one row of the delivery-stats query.
type DeliveryStat struct {
	Channel notifications.Channel
	Status  notifications.Status
	Count   int64
}

// NotificationRepository persists per-recipient delivery records.
type NotificationRepository interface {
	Create(ctx context.Context, n *notifications.Notification) error
	RecordAttempt(ctx context.Context, notificationID string, attempts int, lastError *string) error
	MarkSent(ctx context.Context, notificationID string, at time.Time) error
	MarkFailed(ctx context.Context, notificationID string, attempts int, lastError string) error

	ListInApp(ctx context.Context, recipient string, limit int) ([]notifications.Notification, error)
	UnreadCount(ctx context.Context, recipient string) (int64, error)
	MarkRead(ctx context.Context, notificationID string, at time.Time) (applied bool, err error)
	MarkAllRead(ctx context.Context, recipient string, at time.Time) (updated int64, err error)
	DeliveryStats(ctx context.Context, since time.Time) ([]DeliveryStat, error)
}

// SagaStepState reports what the step ledger already holds for one step.
// First means this run owns the step and must execute it. Completed means a
// prior run finished it; Output carries the result it persisted, so a replay
// can restore in-memory state instead of re-running the action.
type SagaStepState struct {
	First     bool
	Completed bool
	Output    string
}

// SagaRepository is the idempotent step ledger keyed (correlationID, step).
// BeginStep claims the step; CompleteStep records the finished forward
// action together with its output. A step begun but never completed (a crash
// mid-forward) is handed back to the next run via First.
type SagaRepository interface {
	BeginStep(ctx context.Context, correlationID, step string) (SagaStepState, error)
	CompleteStep(ctx context.Context, correlationID, step, output string) error
	MarkCompensated(ctx context.Context, correlationID, step string) error
}
