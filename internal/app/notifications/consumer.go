package notifications

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"delivery-platform/internal/domain/events"
	domain "delivery-platform/internal/domain/notifications"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/contracts"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/rabbitmq"
)

// route maps an order event onto one outbound notification.
type route struct {
	channel  domain.Channel
	template string
}

// routes defines which notifications each event type fans out to. The
// recipient is always the order's customer.
var routes = map[string][]route{
	events.TypeOrderCreated:        {{domain.ChannelInApp, "order_placed"}, {domain.ChannelEmail, "order_receipt"}},
	events.TypeOrderPaymentPending: {{domain.ChannelInApp, "payment_requested"}},
	events.TypeOrderConfirmed:      {{domain.ChannelInApp, "order_confirmed"}, {domain.ChannelEmail, "order_confirmed"}},
	events.TypeOrderPreparing:      {{domain.ChannelInApp, "order_preparing"}},
	events.TypeOrderReadyForPickup: {{domain.ChannelInApp, "order_ready"}},
	events.TypeOrderOutForDelivery: {{domain.ChannelInApp, "order_on_the_way"}, {domain.ChannelPush, "order_on_the_way"}},
	events.TypeOrderDelivered:      {{domain.ChannelInApp, "order_delivered"}, {domain.ChannelEmail, "delivery_receipt"}},
	events.TypeOrderCancelled:      {{domain.ChannelInApp, "order_cancelled"}, {domain.ChannelEmail, "order_cancelled"}},
	events.TypeOrderFailed:         {{domain.ChannelInApp, "order_failed"}, {domain.ChannelEmail, "order_failed"}},
}

// Consumer reads order events off the notification queue and fans each one
// out to its routed channels. The ledger mark and the fan-out's rows commit
// in one transaction, so a failed insert requeues the event instead of
// losing notifications; the ledger keyed (event id, consumer) then absorbs
// broker redeliveries, so a requeued event never notifies twice.
type Consumer struct {
	client   *rabbitmq.Client
	uow      ports.UnitOfWork
	recorder ports.NotificationRecorder
	ledger   ports.ConsumerLedger
	logger   *logger.Logger
	prefetch int
}

// NewConsumer constructs the queue consumer.
func NewConsumer(client *rabbitmq.Client, uow ports.UnitOfWork, recorder ports.NotificationRecorder,
	ledger ports.ConsumerLedger, log *logger.Logger, prefetch int) *Consumer {
	if prefetch <= 0 {
		prefetch = 16
	}
	return &Consumer{client: client, uow: uow, recorder: recorder, ledger: ledger, logger: log, prefetch: prefetch}
}

// Run consumes until ctx is cancelled, re-acquiring the channel after broker
// hiccups.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		ch, err := c.client.NewConsumerChannel(c.prefetch)
		if err != nil {
			c.logger.Error(ctx, "retry_attempted", "Failed to open consumer channel", err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		deliveries, err := ch.Consume(rabbitmq.QueueNotifications, "", false, false, false, false, nil)
		if err != nil {
			ch.Close()
			c.logger.Error(ctx, "retry_attempted", "Failed to start consuming", err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		c.drain(ctx, deliveries)
		ch.Close()
	}
}

// drain processes deliveries until the channel closes or ctx is cancelled.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, open := <-deliveries:
			if !open {
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg contracts.OrderEventMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error(ctx, "event_skipped", "Undecodable queue message, dead-lettering", err)
		_ = d.Nack(false, false) // to the DLX
		return
	}

	evCtx := c.logger.WithCorrelationID(ctx, msg.CorrelationID)

	var payload contracts.EventPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.logger.Error(evCtx, "event_skipped", "Undecodable event payload, dead-lettering", err)
		_ = d.Nack(false, false)
		return
	}

	// the ledger mark and every row of the fan-out commit together; on any
	// failure the transaction rolls back and the event is redelivered whole
	var first bool
	var created []*domain.Notification
	err := c.uow.WithinTx(evCtx, func(txCtx context.Context) error {
		var err error
		first, err = c.ledger.MarkOnce(txCtx, msg.EventID, events.ConsumerNotifications)
		if err != nil || !first {
			return err
		}
		for _, r := range routes[msg.EventType] {
			n, err := c.recorder.Record(txCtx, ports.SendNotificationCommand{
				Recipient: payload.CustomerID,
				Channel:   r.channel,
				Template:  r.template,
				Payload:   msg.Payload,
			})
			if err != nil {
				return err
			}
			created = append(created, n)
		}
		return nil
	})
	if err != nil {
		c.logger.Error(evCtx, "event_failed", "Fan-out failed, requeueing", err)
		_ = d.Nack(false, true)
		return
	}
	if !first {
		// redelivery of an event already fanned out
		_ = d.Ack(false)
		return
	}

	for _, n := range created {
		c.recorder.Dispatch(evCtx, n)
	}
	_ = d.Ack(false)
}
