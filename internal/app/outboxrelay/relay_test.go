package outboxrelay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-platform/internal/domain/events"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/contracts"
	"delivery-platform/internal/shared/logger"
)

type fakeOutbox struct {
	ports.EventRepository
	entries   []ports.OutboxEntry
	published []int64
}

func (f *fakeOutbox) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxEntry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeOutbox) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	f.published = append(f.published, id)
	return nil
}

type fakePublisher struct {
	name     string
	failOn   map[string]bool // event id -> fail
	received []contracts.OrderEventMessage
}

func (p *fakePublisher) Name() string { return p.name }

func (p *fakePublisher) Publish(ctx context.Context, msg contracts.OrderEventMessage) error {
	if p.failOn[msg.EventID] {
		return errors.New("broker unavailable")
	}
	p.received = append(p.received, msg)
	return nil
}

func entry(id int64, orderID int64, eventID, typ string) ports.OutboxEntry {
	return ports.OutboxEntry{
		Event: events.OrderEvent{
			ID:        id,
			EventID:   eventID,
			OrderID:   orderID,
			Type:      typ,
			Payload:   []byte(`{}`),
			EventTime: time.Now().UTC(),
		},
		OrderNumber:   "ORD_20260901_001",
		CorrelationID: "corr-1",
	}
}

func TestRunOncePublishesAndMarks(t *testing.T) {
	outbox := &fakeOutbox{entries: []ports.OutboxEntry{
		entry(1, 10, "ev-1", events.TypeOrderCreated),
		entry(2, 10, "ev-2", events.TypeOrderPaymentPending),
	}}
	pub := &fakePublisher{name: "rabbitmq"}

	relay := NewRelay(outbox, []ports.EventPublisher{pub}, logger.NewLogger("relay-test"), nil, 100)
	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, outbox.published)
	require.Len(t, pub.received, 2)
	assert.Equal(t, "ev-1", pub.received[0].EventID)
	assert.Equal(t, events.TypeOrderCreated, pub.received[0].EventType)
	assert.Equal(t, "ORD_20260901_001", pub.received[0].OrderNumber)
}

func TestRunOnceRetainsRowOnBrokerFailure(t *testing.T) {
	outbox := &fakeOutbox{entries: []ports.OutboxEntry{
		entry(1, 10, "ev-1", events.TypeOrderCreated),
	}}
	pub := &fakePublisher{name: "rabbitmq", failOn: map[string]bool{"ev-1": true}}

	relay := NewRelay(outbox, []ports.EventPublisher{pub}, logger.NewLogger("relay-test"), nil, 100)
	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)

	// the row stays unpublished and is retried next run
	assert.Zero(t, n)
	assert.Empty(t, outbox.published)
}

func TestRunOncePreservesPerOrderOrdering(t *testing.T) {
	outbox := &fakeOutbox{entries: []ports.OutboxEntry{
		entry(1, 10, "ev-1", events.TypeOrderCreated),
		entry(2, 10, "ev-2", events.TypeOrderPaymentPending),
		entry(3, 20, "ev-3", events.TypeOrderCreated),
	}}
	pub := &fakePublisher{name: "rabbitmq", failOn: map[string]bool{"ev-1": true}}

	relay := NewRelay(outbox, []ports.EventPublisher{pub}, logger.NewLogger("relay-test"), nil, 100)
	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)

	// order 10 is blocked at its first event; order 20 still goes out
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{3}, outbox.published)
	require.Len(t, pub.received, 1)
	assert.Equal(t, "ev-3", pub.received[0].EventID)
}

func TestRunOncePartialBrokerSetFails(t *testing.T) {
	outbox := &fakeOutbox{entries: []ports.OutboxEntry{
		entry(1, 10, "ev-1", events.TypeOrderCreated),
	}}
	ok := &fakePublisher{name: "rabbitmq"}
	failing := &fakePublisher{name: "kafka", failOn: map[string]bool{"ev-1": true}}

	relay := NewRelay(outbox, []ports.EventPublisher{ok, failing}, logger.NewLogger("relay-test"), nil, 100)
	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)

	// one broker refused, so the row is retained; consumers dedupe the
	// redelivery on the broker that already accepted it
	assert.Zero(t, n)
	assert.Empty(t, outbox.published)
	assert.Len(t, ok.received, 1)
}
