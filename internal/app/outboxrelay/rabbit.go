package outboxrelay

import (
	"context"
	"encoding/json"

	"delivery-platform/internal/shared/contracts"
	"delivery-platform/internal/shared/rabbitmq"
)

// RabbitPublisher forwards outbox events to the order_events topic exchange.
// The routing key is the event type, so consumers bind on "order.*" or on
// single types.
type RabbitPublisher struct {
	client *rabbitmq.Client
}

// NewRabbitPublisher constructs the RabbitMQ broker adapter.
func NewRabbitPublisher(client *rabbitmq.Client) *RabbitPublisher {
	return &RabbitPublisher{client: client}
}

func (p *RabbitPublisher) Name() string { return "rabbitmq" }

func (p *RabbitPublisher) Publish(ctx context.Context, msg contracts.OrderEventMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.PublishEvent(ctx, msg.EventType, body, msg.EventID, msg.CorrelationID)
}
