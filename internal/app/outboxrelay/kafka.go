package outboxrelay

import (
	"context"
	"encoding/json"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"delivery-platform/internal/shared/contracts"
	"delivery-platform/internal/shared/kafka"
)

// KafkaPublisher forwards outbox events to the analytics stream. Messages are
// keyed by order id so every event of one order lands on the same partition
// and keeps its relative order.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

// NewKafkaPublisher constructs the Kafka broker adapter.
func NewKafkaPublisher(writer *kafkago.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, msg contracts.OrderEventMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return kafka.Publish(ctx, p.writer, strconv.FormatInt(msg.OrderID, 10), body)
}
