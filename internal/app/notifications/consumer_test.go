package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-platform/internal/domain/events"
	domain "delivery-platform/internal/domain/notifications"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/contracts"
	"delivery-platform/internal/shared/logger"
)

type fakeTx struct{}

func (fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRecorder struct {
	recorded   []ports.SendNotificationCommand
	dispatched []*domain.Notification
	recordErr  error
}

func (f *fakeRecorder) Record(ctx context.Context, cmd ports.SendNotificationCommand) (*domain.Notification, error) {
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	f.recorded = append(f.recorded, cmd)
	return &domain.Notification{
		NotificationID: fmt.Sprintf("n-%d", len(f.recorded)),
		Recipient:      cmd.Recipient,
		Channel:        cmd.Channel,
		Template:       cmd.Template,
	}, nil
}

func (f *fakeRecorder) Dispatch(ctx context.Context, n *domain.Notification) {
	f.dispatched = append(f.dispatched, n)
}

type fakeLedger struct {
	seen map[string]bool
}

func (f *fakeLedger) MarkOnce(ctx context.Context, eventID, consumer string) (bool, error) {
	key := eventID + "/" + consumer
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type fakeAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error { f.acked = true; return nil }

func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error { return nil }

func newTestConsumer(rec *fakeRecorder, ledger *fakeLedger) *Consumer {
	return NewConsumer(nil, fakeTx{}, rec, ledger, logger.NewLogger("consumer-test"), 1)
}

func deliveryFor(t *testing.T, eventID, eventType string) amqp.Delivery {
	t.Helper()
	payload, err := json.Marshal(contracts.EventPayload{
		OrderNumber: "ORD_20260901_001",
		CustomerID:  "cust-1",
		Status:      "CONFIRMED",
	})
	require.NoError(t, err)

	body, err := json.Marshal(contracts.OrderEventMessage{
		EventID:       eventID,
		OrderID:       1,
		OrderNumber:   "ORD_20260901_001",
		EventType:     eventType,
		CorrelationID: "corr-1",
		Payload:       payload,
		EventTime:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: &fakeAcker{}, Body: body}
}

func TestHandleFansOutByRoute(t *testing.T) {
	rec := &fakeRecorder{}
	ledger := &fakeLedger{seen: map[string]bool{}}
	c := newTestConsumer(rec, ledger)

	d := deliveryFor(t, "ev-1", events.TypeOrderConfirmed)
	c.handle(context.Background(), d)

	require.Len(t, rec.recorded, 2)
	assert.Equal(t, domain.ChannelInApp, rec.recorded[0].Channel)
	assert.Equal(t, domain.ChannelEmail, rec.recorded[1].Channel)
	assert.Equal(t, "cust-1", rec.recorded[0].Recipient)
	assert.Equal(t, "order_confirmed", rec.recorded[0].Template)

	// everything recorded in the transaction is dispatched after it
	assert.Len(t, rec.dispatched, 2)
	assert.True(t, d.Acknowledger.(*fakeAcker).acked)
}

func TestHandleDeduplicatesRedelivery(t *testing.T) {
	rec := &fakeRecorder{}
	ledger := &fakeLedger{seen: map[string]bool{}}
	c := newTestConsumer(rec, ledger)

	c.handle(context.Background(), deliveryFor(t, "ev-1", events.TypeOrderDelivered))
	d := deliveryFor(t, "ev-1", events.TypeOrderDelivered)
	c.handle(context.Background(), d)

	// the redelivered event produced no second fan-out and was acked away
	assert.Len(t, rec.recorded, 2) // in_app + email, once
	assert.True(t, d.Acknowledger.(*fakeAcker).acked)
}

func TestHandleRecordFailureRequeuesWholeEvent(t *testing.T) {
	rec := &fakeRecorder{recordErr: errors.New("insert failed")}
	ledger := &fakeLedger{seen: map[string]bool{}}
	c := newTestConsumer(rec, ledger)

	d := deliveryFor(t, "ev-1", events.TypeOrderConfirmed)
	c.handle(context.Background(), d)

	// nothing is dispatched and the event goes back on the queue
	assert.Empty(t, rec.dispatched)
	acker := d.Acknowledger.(*fakeAcker)
	assert.False(t, acker.acked)
	assert.True(t, acker.nacked)
	assert.True(t, acker.requeue)
}

func TestHandleSkipsUnroutedEventTypes(t *testing.T) {
	rec := &fakeRecorder{}
	ledger := &fakeLedger{seen: map[string]bool{}}
	c := newTestConsumer(rec, ledger)

	c.handle(context.Background(), deliveryFor(t, "ev-1", "order.unknown"))
	assert.Empty(t, rec.recorded)
}

func TestHandleUndecodableBody(t *testing.T) {
	rec := &fakeRecorder{}
	ledger := &fakeLedger{seen: map[string]bool{}}
	c := newTestConsumer(rec, ledger)

	d := amqp.Delivery{Acknowledger: &fakeAcker{}, Body: []byte("garbage")}
	c.handle(context.Background(), d)
	assert.Empty(t, rec.recorded)
	assert.Empty(t, ledger.seen) // not consumed, goes to the DLX
	acker := d.Acknowledger.(*fakeAcker)
	assert.True(t, acker.nacked)
	assert.False(t, acker.requeue)
}
