package ports

import (
	"context"
	"time"

	"delivery-platform/internal/domain/notifications"
	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/shared/contracts"
)

// OrderService owns the mutation path: create, transition, cancel.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd CreateOrderCommand) (OrderView, error)
	Transition(ctx context.Context, cmd TransitionCommand) (OrderView, error)
	GetOrder(ctx context.Context, number string) (OrderView, error)
	OrderEvents(ctx context.Context, number string) ([]EventView, error)
	EventVolume(ctx context.Context, since time.Time) ([]EventTypeCount, error)
}

type EventTypeCount struct {
	Type  string
	Count int64
}

type ItemInput struct {
	Name      string
	Quantity  int
	UnitPrice orders.Money
}

type CreateOrderCommand struct {
	CustomerID   string
	RestaurantID string
	Items        []ItemInput
	Tax          orders.Money
	DeliveryFee  orders.Money
	Tip          orders.Money
	Discount     orders.Money
}

// TransitionCommand drives one edge of the state machine. ExpectedVersion is
// the version the caller read; a stale value fails with a version conflict.
type TransitionCommand struct {
	Number          string
	To              orders.OrderStatus
	Actor           string
	ExpectedVersion int64
	PaymentID       *string
	DriverID        *string
	Reason          *string
}

type OrderView struct {
	Number        string
	Status        orders.OrderStatus
	Version       int64
	CorrelationID string
	Subtotal      orders.Money
	Tax           orders.Money
	DeliveryFee   orders.Money
	Tip           orders.Money
	Discount      orders.Money
	Total         orders.Money
	DriverID      *string
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
	CancelledAt   *time.Time
	DeliveredAt   *time.Time
}

type EventView struct {
	EventID   string
	Type      string
	EventTime time.Time
	Processed bool
}

// EventPublisher forwards one outbox row to a distribution channel. A failed
// Publish leaves the row eligible for the next relay run (at-least-once).
type EventPublisher interface {
	Name() string
	Publish(ctx context.Context, msg contracts.OrderEventMessage) error
}

// NotificationSender accepts a dispatch request and returns immediately;
// final delivery status is observed via DeliveryStats, not the call return.
type NotificationSender interface {
	Send(ctx context.Context, cmd SendNotificationCommand) (notificationID string, err error)
}

// NotificationRecorder splits Send into its two halves. Record persists the
// PENDING row without dispatching; consumers batch several records inside
// one transaction and call Dispatch for each only after the commit, so a
// failed insert can requeue the whole event instead of losing part of the
// fan-out.
type NotificationRecorder interface {
	Record(ctx context.Context, cmd SendNotificationCommand) (*notifications.Notification, error)
	Dispatch(ctx context.Context, n *notifications.Notification)
}

type SendNotificationCommand struct {
	Recipient string
	Channel   notifications.Channel
	Template  string
	Payload   []byte
}

// OrderFlows runs the cross-service confirm and dispatch sagas.
type OrderFlows interface {
	Confirm(ctx context.Context, number string) error
	Dispatch(ctx context.Context, number string) error
}

// PaymentGateway and DriverPool are the saga's external collaborators.
type PaymentGateway interface {
	Reserve(ctx context.Context, orderNumber string, amount orders.Money) (paymentID string, err error)
	Release(ctx context.Context, paymentID string) error
}

type DriverPool interface {
	Assign(ctx context.Context, orderNumber string) (driverID string, err error)
	Release(ctx context.Context, driverID string) error
}
