package orderservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"delivery-platform/internal/domain/events"
	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
)

// Service implements ports.OrderService. Every mutation commits the order row
// and its event in one transaction; nothing is ever published from here.
type Service struct {
	uow    ports.UnitOfWork
	orders ports.OrderRepository
	events ports.EventRepository
	logger *logger.Logger
	now    func() time.Time
}

// NewService constructs the order service.
func NewService(uow ports.UnitOfWork, orderRepo ports.OrderRepository, eventRepo ports.EventRepository, log *logger.Logger) *Service {
	return &Service{
		uow:    uow,
		orders: orderRepo,
		events: eventRepo,
		logger: log,
		now:    time.Now,
	}
}

// PlaceOrder validates the command, assigns the order number, and commits the
// aggregate together with its order.created event.
func (s *Service) PlaceOrder(ctx context.Context, cmd ports.CreateOrderCommand) (ports.OrderView, error) {
	if strings.TrimSpace(cmd.CustomerID) == "" {
		return ports.OrderView{}, fmt.Errorf("customer_id is required")
	}
	if strings.TrimSpace(cmd.RestaurantID) == "" {
		return ports.OrderView{}, fmt.Errorf("restaurant_id is required")
	}
	if len(cmd.Items) == 0 {
		return ports.OrderView{}, fmt.Errorf("order must contain at least one item")
	}

	now := s.now().UTC()

	correlationID := logger.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
		ctx = s.logger.WithCorrelationID(ctx, correlationID)
	}

	items := make([]orders.OrderItem, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		items = append(items, orders.OrderItem{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	var view ports.OrderView
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		seq, err := s.orders.NextOrderSeq(txCtx, now)
		if err != nil {
			return fmt.Errorf("failed to get order sequence: %w", err)
		}
		number := fmt.Sprintf("ORD_%s_%03d", now.Format("20060102"), seq)

		order, ev, err := orders.NewOrder(number, cmd.CustomerID, cmd.RestaurantID, correlationID,
			items, cmd.Tax, cmd.DeliveryFee, cmd.Tip, cmd.Discount, now)
		if err != nil {
			return err
		}

		if err := s.orders.Create(txCtx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		ev.OrderID = order.ID
		if err := s.events.Append(txCtx, ev); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}

		view = toView(order)
		return nil
	})
	if err != nil {
		return ports.OrderView{}, err
	}

	s.logger.Info(ctx, "order_created", "Order created: "+view.Number,
		map[string]any{"order_number": view.Number, "total": view.Total.ToFloat2()})

	return view, nil
}

// Transition drives one edge of the state machine under optimistic
// concurrency. A stale ExpectedVersion, or a CAS loss against a concurrent
// writer, surfaces as orders.ErrVersionConflict and commits nothing.
func (s *Service) Transition(ctx context.Context, cmd ports.TransitionCommand) (ports.OrderView, error) {
	var view ports.OrderView
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.GetByNumber(txCtx, cmd.Number)
		if err != nil {
			return err
		}
		if cmd.ExpectedVersion != 0 && cmd.ExpectedVersion != order.Version {
			return orders.ErrVersionConflict
		}
		expected := order.Version

		ev, err := order.Transition(orders.TransitionInput{
			To:        cmd.To,
			Actor:     cmd.Actor,
			PaymentID: cmd.PaymentID,
			DriverID:  cmd.DriverID,
			Reason:    cmd.Reason,
			Now:       s.now(),
		})
		if err != nil {
			return err
		}

		applied, err := s.orders.UpdateCAS(txCtx, order, expected)
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if !applied {
			return orders.ErrVersionConflict
		}
		if err := s.events.Append(txCtx, ev); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}

		view = toView(order)
		return nil
	})
	if err != nil {
		return ports.OrderView{}, err
	}

	s.logger.Info(s.logger.WithCorrelationID(ctx, view.CorrelationID),
		"status_updated", fmt.Sprintf("Order %s is now %s", view.Number, view.Status),
		map[string]any{"order_number": view.Number, "status": string(view.Status), "version": view.Version})

	return view, nil
}

// GetOrder returns the current state of one order.
func (s *Service) GetOrder(ctx context.Context, number string) (ports.OrderView, error) {
	order, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return ports.OrderView{}, err
	}
	return toView(order), nil
}

// OrderEvents returns the order's event history in commit order.
func (s *Service) OrderEvents(ctx context.Context, number string) ([]ports.EventView, error) {
	order, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	evs, err := s.events.ByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	out := make([]ports.EventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ports.EventView{
			EventID:   ev.EventID,
			Type:      ev.Type,
			EventTime: ev.EventTime,
			Processed: ev.Processed,
		})
	}
	return out, nil
}

// EventVolume counts events emitted per type since the given time. Types with
// no traffic in the window are omitted.
func (s *Service) EventVolume(ctx context.Context, since time.Time) ([]ports.EventTypeCount, error) {
	out := make([]ports.EventTypeCount, 0, len(events.AllTypes))
	for _, typ := range events.AllTypes {
		n, err := s.events.CountSince(ctx, typ, since)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s events: %w", typ, err)
		}
		if n == 0 {
			continue
		}
		out = append(out, ports.EventTypeCount{Type: typ, Count: n})
	}
	return out, nil
}

func toView(o *orders.Order) ports.OrderView {
	return ports.OrderView{
		Number:        o.Number,
		Status:        o.Status,
		Version:       o.Version,
		CorrelationID: o.CorrelationID,
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		DeliveryFee:   o.DeliveryFee,
		Tip:           o.Tip,
		Discount:      o.Discount,
		Total:         o.Total,
		DriverID:      o.DriverID,
		CreatedAt:     o.CreatedAt,
		ConfirmedAt:   o.ConfirmedAt,
		CancelledAt:   o.CancelledAt,
		DeliveredAt:   o.DeliveredAt,
	}
}
