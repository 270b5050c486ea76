package contracts

import (
	"encoding/json"
	"time"
)

// OrderEventMessage is the wire format every committed state transition is
// published with, on both the RabbitMQ and the Kafka side. Routing key /
// message key are derived from EventType and OrderID respectively, so
// per-order ordering survives the hop.
type OrderEventMessage struct {
	EventID       string          `json:"event_id"`
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	EventType     string          `json:"event_type"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
	EventTime     time.Time       `json:"event_time"`
}

// EventPayload mirrors the JSON body the order aggregate attaches to each
// event. Consumers decode only the fields they need.
type EventPayload struct {
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
