package outboxrelay

import (
	"context"
	"encoding/json"
	"time"

	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/contracts"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
)

// Relay drains the outbox: it reads unpublished events in commit order and
// forwards each one to every configured broker. A row is marked published
// only when all brokers accepted it, so a broker outage means redelivery,
// never loss. Consumers dedupe by event id.
type Relay struct {
	events     ports.EventRepository
	publishers []ports.EventPublisher
	logger     *logger.Logger
	metrics    *metrics.Metrics
	batchSize  int
	now        func() time.Time
}

// NewRelay constructs the relay over the given brokers.
func NewRelay(events ports.EventRepository, publishers []ports.EventPublisher, log *logger.Logger, m *metrics.Metrics, batchSize int) *Relay {
	return &Relay{
		events:     events,
		publishers: publishers,
		logger:     log,
		metrics:    m,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// RunOnce processes one batch and returns how many events were fully
// published. Events stay in order per order id; a failed event blocks only
// itself, later events of other orders still go out.
func (relay *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := relay.events.FetchUnpublished(ctx, relay.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	// orders whose earlier event failed this pass; skip their later events
	// so per-order ordering is preserved on the broker side
	blocked := map[int64]bool{}

	for _, entry := range entries {
		if blocked[entry.Event.OrderID] {
			continue
		}

		msg := toMessage(entry)
		evCtx := relay.logger.WithCorrelationID(ctx, entry.CorrelationID)

		ok := true
		for _, pub := range relay.publishers {
			if err := pub.Publish(evCtx, msg); err != nil {
				relay.logger.Error(evCtx, "publish_failed",
					"Failed to publish "+msg.EventType+" to "+pub.Name(), err)
				ok = false
				break
			}
			if relay.metrics != nil {
				relay.metrics.EventsPublished.WithLabelValues(pub.Name()).Inc()
			}
		}
		if !ok {
			blocked[entry.Event.OrderID] = true
			continue
		}

		if err := relay.events.MarkPublished(ctx, entry.Event.ID, relay.now().UTC()); err != nil {
			relay.logger.Error(evCtx, "publish_failed", "Failed to mark event published", err)
			blocked[entry.Event.OrderID] = true
			continue
		}
		published++
	}

	if relay.metrics != nil {
		relay.metrics.OutboxLag.Set(float64(len(entries) - published))
	}
	return published, nil
}

func toMessage(entry ports.OutboxEntry) contracts.OrderEventMessage {
	return contracts.OrderEventMessage{
		EventID:       entry.Event.EventID,
		OrderID:       entry.Event.OrderID,
		OrderNumber:   entry.OrderNumber,
		EventType:     entry.Event.Type,
		CorrelationID: entry.CorrelationID,
		Payload:       json.RawMessage(entry.Event.Payload),
		EventTime:     entry.Event.EventTime,
	}
}
