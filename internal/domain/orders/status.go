package orders

// OrderStatus is a custom type that represents the current status of an order in its lifecycle.
type OrderStatus string

const (
	StatusPending        OrderStatus = "PENDING"
	StatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	StatusConfirmed      OrderStatus = "CONFIRMED"
	StatusPreparing      OrderStatus = "PREPARING"
	StatusReadyForPickup OrderStatus = "READY_FOR_PICKUP"
	StatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      OrderStatus = "DELIVERED"
	StatusCancelled      OrderStatus = "CANCELLED"
	StatusFailed         OrderStatus = "FAILED"
)

// Allowed state transitions. CANCELLED is reachable from every state before
// OUT_FOR_DELIVERY; FAILED only from the two pre-payment states.
var allowed = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:        {StatusPaymentPending: true, StatusCancelled: true, StatusFailed: true},
	StatusPaymentPending: {StatusConfirmed: true, StatusCancelled: true, StatusFailed: true},
	StatusConfirmed:      {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:      {StatusReadyForPickup: true, StatusCancelled: true},
	StatusReadyForPickup: {StatusOutForDelivery: true, StatusCancelled: true},
	StatusOutForDelivery: {StatusDelivered: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
	StatusFailed:         {},
}

// CanTransition checks if from->to is allowed.
func CanTransition(from, to OrderStatus) bool {
	nexts := allowed[from]
	return nexts != nil && nexts[to]
}

// NextStatuses returns all valid next states from a given state.
func NextStatuses(from OrderStatus) []OrderStatus {
	var out []OrderStatus
	for _, s := range statusOrder {
		if allowed[from][s] {
			out = append(out, s)
		}
	}
	return out
}

// Terminal reports whether no further transitions are possible.
func Terminal(s OrderStatus) bool { return len(allowed[s]) == 0 }

// statusOrder keeps NextStatuses output deterministic.
var statusOrder = []OrderStatus{
	StatusPending, StatusPaymentPending, StatusConfirmed, StatusPreparing,
	StatusReadyForPickup, StatusOutForDelivery, StatusDelivered,
	StatusCancelled, StatusFailed,
}
