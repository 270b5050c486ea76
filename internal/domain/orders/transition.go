package orders

import (
	"encoding/json"
	"strings"
	"time"

	"delivery-platform/internal/domain/events"
)

// eventTypeFor maps a target status to the event type describing the edge.
var eventTypeFor = map[OrderStatus]string{
	StatusPending:        events.TypeOrderCreated,
	StatusPaymentPending: events.TypeOrderPaymentPending,
	StatusConfirmed:      events.TypeOrderConfirmed,
	StatusPreparing:      events.TypeOrderPreparing,
	StatusReadyForPickup: events.TypeOrderReadyForPickup,
	StatusOutForDelivery: events.TypeOrderOutForDelivery,
	StatusDelivered:      events.TypeOrderDelivered,
	StatusCancelled:      events.TypeOrderCancelled,
	StatusFailed:         events.TypeOrderFailed,
}

// TransitionInput carries everything a single state transition may need.
type TransitionInput struct {
	To        OrderStatus
	Actor     string // who drives the transition: customer, restaurant, driver, saga, system
	PaymentID *string
	DriverID  *string
	Reason    *string
	Now       time.Time
}

// eventPayload is the JSON body of every order event.
type eventPayload struct {
	OrderNumber   string  `json:"order_number"`
	CustomerID    string  `json:"customer_id"`
	RestaurantID  string  `json:"restaurant_id"`
	Status        string  `json:"status"`
	PrevStatus    string  `json:"prev_status,omitempty"`
	TotalCents    int64   `json:"total_cents"`
	Actor         string  `json:"actor,omitempty"`
	Reason        *string `json:"reason,omitempty"`
	CorrelationID string  `json:"correlation_id"`
}

// NewOrder builds a fresh PENDING aggregate. Creation counts as the first
// committed mutation, so the order starts at version 1 with its
// order.created event.
func NewOrder(number, customerID, restaurantID, correlationID string, items []OrderItem, tax, deliveryFee, tip, discount Money, now time.Time) (*Order, *events.OrderEvent, error) {
	now = now.UTC()
	order := &Order{
		Number:        number,
		CustomerID:    customerID,
		RestaurantID:  restaurantID,
		Status:        StatusPending,
		Items:         items,
		Tax:           tax,
		DeliveryFee:   deliveryFee,
		Tip:           tip,
		Discount:      discount,
		Version:       1,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range order.Items {
		it := order.Items[i]
		if strings.TrimSpace(it.Name) == "" {
			return nil, nil, &InvalidTransitionError{From: StatusPending, To: StatusPending, Reason: "item name must not be empty"}
		}
		if it.Quantity <= 0 {
			return nil, nil, &InvalidTransitionError{From: StatusPending, To: StatusPending, Reason: "item quantity must be > 0"}
		}
		if it.UnitPrice < 0 {
			return nil, nil, &InvalidTransitionError{From: StatusPending, To: StatusPending, Reason: "item unit price must be >= 0"}
		}
	}
	order.SetTotals()
	if err := order.CheckMoney(); err != nil {
		return nil, nil, err
	}
	ev, err := order.event(StatusPending, "", "system", nil, now)
	if err != nil {
		return nil, nil, err
	}
	return order, ev, nil
}

// present reports whether an optional id was supplied and is non-blank.
func present(id *string) bool {
	return id != nil && strings.TrimSpace(*id) != ""
}

// Transition is the only mutation path of the aggregate. It validates the
// edge and the target-state invariants, applies the field changes, stamps
// the relevant timestamp, increments the version, and returns exactly one
// event to append in the same unit of work. On error the order is unchanged.
func (order *Order) Transition(in TransitionInput) (*events.OrderEvent, error) {
	from := order.Status
	if !CanTransition(from, in.To) {
		return nil, &InvalidTransitionError{From: from, To: in.To}
	}

	// target-state invariants, checked before any field is touched
	switch in.To {
	case StatusConfirmed:
		if len(order.Items) == 0 {
			return nil, &InvalidTransitionError{From: from, To: in.To, Reason: "order has no items"}
		}
		if order.PaymentID == nil && !present(in.PaymentID) {
			return nil, &InvalidTransitionError{From: from, To: in.To, Reason: "payment id is not resolved"}
		}
	case StatusOutForDelivery:
		if order.DriverID == nil && !present(in.DriverID) {
			return nil, &InvalidTransitionError{From: from, To: in.To, Reason: "no driver assigned"}
		}
	case StatusCancelled, StatusFailed:
		if strings.TrimSpace(in.Actor) == "" {
			return nil, &InvalidTransitionError{From: from, To: in.To, Reason: "actor is required"}
		}
	}
	if err := order.CheckMoney(); err != nil {
		return nil, err
	}

	now := in.Now.UTC()
	if now.Before(order.CreatedAt) {
		now = order.CreatedAt
	}

	// apply field changes; a blank id never overwrites a stored one
	order.Status = in.To
	if present(in.PaymentID) {
		order.PaymentID = in.PaymentID
	}
	if present(in.DriverID) {
		order.DriverID = in.DriverID
	}

	// lifecycle timestamps are set exactly once
	switch in.To {
	case StatusConfirmed:
		if order.ConfirmedAt == nil {
			order.ConfirmedAt = &now
		}
	case StatusCancelled, StatusFailed:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
		actor := in.Actor
		order.CancelledBy = &actor
		if in.Reason != nil {
			order.FailureReason = in.Reason
		}
	case StatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	}

	order.Version++
	order.UpdatedAt = now

	return order.event(in.To, from, in.Actor, in.Reason, now)
}

func (order *Order) event(to, from OrderStatus, actor string, reason *string, at time.Time) (*events.OrderEvent, error) {
	body, err := json.Marshal(eventPayload{
		OrderNumber:   order.Number,
		CustomerID:    order.CustomerID,
		RestaurantID:  order.RestaurantID,
		Status:        string(to),
		PrevStatus:    string(from),
		TotalCents:    int64(order.Total),
		Actor:         actor,
		Reason:        reason,
		CorrelationID: order.CorrelationID,
	})
	if err != nil {
		return nil, err
	}
	return events.New(order.ID, eventTypeFor[to], body, at), nil
}
