package orderservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-platform/internal/domain/events"
	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
)

type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeOrderRepo struct {
	byNumber map[string]*orders.Order
	created  []*orders.Order
	seq      int64

	casApplied bool
	casCalls   int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{byNumber: map[string]*orders.Order{}, seq: 1, casApplied: true}
}

func (r *fakeOrderRepo) Create(ctx context.Context, o *orders.Order) error {
	o.ID = int64(len(r.created) + 1)
	r.created = append(r.created, o)
	r.byNumber[o.Number] = o
	return nil
}

func (r *fakeOrderRepo) GetByNumber(ctx context.Context, number string) (*orders.Order, error) {
	o, ok := r.byNumber[number]
	if !ok {
		return nil, assert.AnError
	}
	clone := *o
	return &clone, nil
}

func (r *fakeOrderRepo) UpdateCAS(ctx context.Context, o *orders.Order, expectedVersion int64) (bool, error) {
	r.casCalls++
	if !r.casApplied {
		return false, nil
	}
	r.byNumber[o.Number] = o
	return true, nil
}

func (r *fakeOrderRepo) NextOrderSeq(ctx context.Context, day time.Time) (int64, error) {
	return r.seq, nil
}

type fakeEventRepo struct {
	ports.EventRepository
	appended []*events.OrderEvent
	byOrder  []events.OrderEvent
	counts   map[string]int64
}

func (r *fakeEventRepo) Append(ctx context.Context, ev *events.OrderEvent) error {
	r.appended = append(r.appended, ev)
	return nil
}

func (r *fakeEventRepo) ByOrder(ctx context.Context, orderID int64) ([]events.OrderEvent, error) {
	return r.byOrder, nil
}

func (r *fakeEventRepo) CountSince(ctx context.Context, eventType string, since time.Time) (int64, error) {
	return r.counts[eventType], nil
}

func newTestService(orderRepo *fakeOrderRepo, eventRepo *fakeEventRepo) *Service {
	svc := NewService(fakeUOW{}, orderRepo, eventRepo, logger.NewLogger("order-service-test"))
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func validCreateCommand() ports.CreateOrderCommand {
	return ports.CreateOrderCommand{
		CustomerID:   "cust-1",
		RestaurantID: "rest-1",
		Items: []ports.ItemInput{
			{Name: "Margherita", Quantity: 1, UnitPrice: orders.NewMoneyFromFloat2(12.50)},
		},
		Tax: orders.NewMoneyFromFloat2(1.00),
	}
}

func TestPlaceOrder(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	eventRepo := &fakeEventRepo{}
	svc := newTestService(orderRepo, eventRepo)

	view, err := svc.PlaceOrder(context.Background(), validCreateCommand())
	require.NoError(t, err)

	assert.Equal(t, "ORD_20260901_001", view.Number)
	assert.Equal(t, orders.StatusPending, view.Status)
	assert.Equal(t, int64(1), view.Version)
	assert.Equal(t, orders.NewMoneyFromFloat2(13.50), view.Total)
	assert.NotEmpty(t, view.CorrelationID)

	// the created event commits in the same unit of work as the order row
	require.Len(t, eventRepo.appended, 1)
	assert.Equal(t, events.TypeOrderCreated, eventRepo.appended[0].Type)
	assert.Equal(t, orderRepo.created[0].ID, eventRepo.appended[0].OrderID)
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := newTestService(newFakeOrderRepo(), &fakeEventRepo{})

	cmd := validCreateCommand()
	cmd.CustomerID = ""
	_, err := svc.PlaceOrder(context.Background(), cmd)
	assert.Error(t, err)

	cmd = validCreateCommand()
	cmd.Items = nil
	_, err = svc.PlaceOrder(context.Background(), cmd)
	assert.Error(t, err)
}

func TestTransition(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	eventRepo := &fakeEventRepo{}
	svc := newTestService(orderRepo, eventRepo)

	view, err := svc.PlaceOrder(context.Background(), validCreateCommand())
	require.NoError(t, err)

	got, err := svc.Transition(context.Background(), ports.TransitionCommand{
		Number:          view.Number,
		To:              orders.StatusPaymentPending,
		Actor:           "saga",
		ExpectedVersion: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPaymentPending, got.Status)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, eventRepo.appended, 2)
	assert.Equal(t, events.TypeOrderPaymentPending, eventRepo.appended[1].Type)
}

func TestTransitionStaleVersion(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	eventRepo := &fakeEventRepo{}
	svc := newTestService(orderRepo, eventRepo)

	view, err := svc.PlaceOrder(context.Background(), validCreateCommand())
	require.NoError(t, err)

	// a concurrent writer already advanced the order to version 2
	orderRepo.byNumber[view.Number].Version = 2

	_, err = svc.Transition(context.Background(), ports.TransitionCommand{
		Number:          view.Number,
		To:              orders.StatusPaymentPending,
		Actor:           "saga",
		ExpectedVersion: 1,
	})
	require.ErrorIs(t, err, orders.ErrVersionConflict)

	// nothing was written
	assert.Zero(t, orderRepo.casCalls)
	assert.Len(t, eventRepo.appended, 1)
}

func TestTransitionCASLoss(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	eventRepo := &fakeEventRepo{}
	svc := newTestService(orderRepo, eventRepo)

	view, err := svc.PlaceOrder(context.Background(), validCreateCommand())
	require.NoError(t, err)

	orderRepo.casApplied = false
	_, err = svc.Transition(context.Background(), ports.TransitionCommand{
		Number:          view.Number,
		To:              orders.StatusPaymentPending,
		Actor:           "saga",
		ExpectedVersion: 1,
	})
	require.ErrorIs(t, err, orders.ErrVersionConflict)
	assert.Len(t, eventRepo.appended, 1)
}

func TestTransitionIllegalEdgePropagates(t *testing.T) {
	orderRepo := newFakeOrderRepo()
	svc := newTestService(orderRepo, &fakeEventRepo{})

	view, err := svc.PlaceOrder(context.Background(), validCreateCommand())
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), ports.TransitionCommand{
		Number: view.Number,
		To:     orders.StatusDelivered,
		Actor:  "driver",
	})
	var invalid *orders.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestEventVolumeOmitsQuietTypes(t *testing.T) {
	eventRepo := &fakeEventRepo{counts: map[string]int64{
		events.TypeOrderCreated:   12,
		events.TypeOrderDelivered: 9,
	}}
	svc := newTestService(newFakeOrderRepo(), eventRepo)

	counts, err := svc.EventVolume(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []ports.EventTypeCount{
		{Type: events.TypeOrderCreated, Count: 12},
		{Type: events.TypeOrderDelivered, Count: 9},
	}, counts)
}
