package orders

import (
	"fmt"
	"time"
)

// OrderItem represents a single line in an order. Items are owned by the
// order and cascade-deleted with it.
type OrderItem struct {
	ID        int64 // DB PK
	OrderID   int64
	Name      string
	Quantity  int
	UnitPrice Money // per-unit in cents
	Total     Money // Quantity * UnitPrice
}

// Order is the aggregate root. The order-service process exclusively owns
// writes; every persisted mutation must supply the version it read.
type Order struct {
	ID           int64
	Number       string // follows the format: ORD_YYYYMMDD_NNN
	CustomerID   string
	RestaurantID string
	DriverID     *string // nil until assignment

	Status OrderStatus
	Items  []OrderItem

	Subtotal    Money
	Tax         Money
	DeliveryFee Money
	Tip         Money
	Discount    Money
	Total       Money

	Version       int64  // optimistic concurrency counter
	CorrelationID string // groups all events/steps of one saga instance

	PaymentID     *string
	FailureReason *string
	CancelledBy   *string

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
	DeliveredAt *time.Time
	UpdatedAt   time.Time
}

// SetTotals recomputes per-item totals, the subtotal, and the grand total
// from the monetary fields.
func (order *Order) SetTotals() {
	var subtotal Money
	for i := range order.Items {
		it := &order.Items[i]
		it.Total = Money(it.Quantity) * it.UnitPrice
		subtotal += it.Total
	}
	order.Subtotal = subtotal
	order.Total = order.Subtotal + order.Tax + order.DeliveryFee + order.Tip - order.Discount
}

// CheckMoney enforces the monetary identity
// total = subtotal + tax + delivery_fee + tip - discount on every mutation.
func (order *Order) CheckMoney() error {
	want := order.Subtotal + order.Tax + order.DeliveryFee + order.Tip - order.Discount
	if order.Total != want {
		return fmt.Errorf("monetary invariant violated: total %d != %d", order.Total, want)
	}
	if order.Subtotal < 0 || order.Tax < 0 || order.DeliveryFee < 0 || order.Tip < 0 || order.Discount < 0 {
		return fmt.Errorf("monetary fields must be non-negative")
	}
	return nil
}
