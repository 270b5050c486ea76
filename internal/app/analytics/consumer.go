package analytics

import (
	"context"
	"encoding/json"
	"errors"

	kafkago "github.com/segmentio/kafka-go"

	"delivery-platform/internal/domain/events"
	"delivery-platform/internal/shared/contracts"
	"delivery-platform/internal/shared/logger"
)

// Consumer reads the order-events stream and feeds the aggregation service.
// Offsets are committed only after Aggregate returns, giving at-least-once
// delivery; the ledger turns that into exactly-once aggregation.
type Consumer struct {
	reader *kafkago.Reader
	svc    *Service
	logger *logger.Logger
}

// NewConsumer constructs the stream consumer.
func NewConsumer(reader *kafkago.Reader, svc *Service, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, svc: svc, logger: log}
}

// Run consumes until ctx is cancelled. Undecodable messages are logged and
// committed; the reconciliation sweep covers anything the stream drops.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var msg contracts.OrderEventMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			c.logger.Error(ctx, "event_skipped", "Undecodable stream message, skipping", err)
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				return err
			}
			continue
		}

		evCtx := c.logger.WithCorrelationID(ctx, msg.CorrelationID)
		ev := events.OrderEvent{
			EventID:   msg.EventID,
			OrderID:   msg.OrderID,
			Type:      msg.EventType,
			Payload:   []byte(msg.Payload),
			EventTime: msg.EventTime,
		}
		if err := c.svc.Aggregate(evCtx, ev); err != nil {
			// leave the offset uncommitted; the message is retried, and the
			// sweep picks the event up regardless
			c.logger.Error(evCtx, "event_failed", "Failed to aggregate "+msg.EventType, err)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			return err
		}
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
