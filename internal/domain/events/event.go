package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types, one per order state transition.
const (
	TypeOrderCreated        = "order.created"
	TypeOrderPaymentPending = "order.payment_pending"
	TypeOrderConfirmed      = "order.confirmed"
	TypeOrderPreparing      = "order.preparing"
	TypeOrderReadyForPickup = "order.ready_for_pickup"
	TypeOrderOutForDelivery = "order.out_for_delivery"
	TypeOrderDelivered      = "order.delivered"
	TypeOrderCancelled      = "order.cancelled"
	TypeOrderFailed         = "order.failed"
)

// AllTypes lists every event type in lifecycle order.
var AllTypes = []string{
	TypeOrderCreated,
	TypeOrderPaymentPending,
	TypeOrderConfirmed,
	TypeOrderPreparing,
	TypeOrderReadyForPickup,
	TypeOrderOutForDelivery,
	TypeOrderDelivered,
	TypeOrderCancelled,
	TypeOrderFailed,
}

// Consumer identities for the idempotence ledger.
const (
	ConsumerAnalytics     = "analytics"
	ConsumerNotifications = "notifications"
)

// OrderEvent is an immutable fact describing one committed state transition.
// It is appended in the same transaction as the state write (outbox pattern)
// and consumed independently by each downstream service.
type OrderEvent struct {
	ID          int64
	EventID     string // UUID, stable across retries
	OrderID     int64
	Type        string
	Payload     []byte // JSON
	EventTime   time.Time
	Processed   bool // analytics-side ack; the reconciler's backstop target
	PublishedAt *time.Time
}

// New builds an unappended event with a fresh event id.
func New(orderID int64, typ string, payload []byte, at time.Time) *OrderEvent {
	return &OrderEvent{
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		Type:      typ,
		Payload:   payload,
		EventTime: at.UTC(),
	}
}
