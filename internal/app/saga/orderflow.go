package saga

import (
	"context"

	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
)

const actorSaga = "saga"

// OrderFlow drives the order's cross-service flows: payment confirmation and
// driver dispatch. Each flow is a saga keyed by the order's correlation id
// plus a flow suffix, so confirm and dispatch of one order never collide in
// the step ledger.
type OrderFlow struct {
	coordinator *Coordinator
	orders      ports.OrderService
	payments    ports.PaymentGateway
	drivers     ports.DriverPool
	logger      *logger.Logger
}

// NewOrderFlow constructs the flow runner.
func NewOrderFlow(coordinator *Coordinator, orderSvc ports.OrderService, payments ports.PaymentGateway, drivers ports.DriverPool, log *logger.Logger) *OrderFlow {
	return &OrderFlow{
		coordinator: coordinator,
		orders:      orderSvc,
		payments:    payments,
		drivers:     drivers,
		logger:      log,
	}
}

// Confirm takes a PENDING order through payment to CONFIRMED. If any step
// fails, the payment reservation is released and the order is cancelled with
// the failure reason.
func (f *OrderFlow) Confirm(ctx context.Context, number string) error {
	view, err := f.orders.GetOrder(ctx, number)
	if err != nil {
		return err
	}

	var paymentID string
	reason := "payment flow failed"

	steps := []Step{
		{
			Name: "payment_pending",
			Forward: func(ctx context.Context) (string, error) {
				_, err := f.orders.Transition(ctx, ports.TransitionCommand{
					Number: number, To: orders.StatusPaymentPending, Actor: actorSaga,
				})
				return "", err
			},
			Compensate: func(ctx context.Context) error {
				_, err := f.orders.Transition(ctx, ports.TransitionCommand{
					Number: number, To: orders.StatusCancelled, Actor: actorSaga, Reason: &reason,
				})
				return err
			},
		},
		{
			Name: "reserve_payment",
			Forward: func(ctx context.Context) (string, error) {
				id, err := f.payments.Reserve(ctx, number, view.Total)
				if err != nil {
					return "", err
				}
				paymentID = id
				return id, nil
			},
			// a replay that skips this step gets the reservation id back
			// from the ledger, so confirm_order never runs without it
			Restore: func(output string) { paymentID = output },
			Compensate: func(ctx context.Context) error {
				if paymentID == "" {
					return nil
				}
				return f.payments.Release(ctx, paymentID)
			},
		},
		{
			Name: "confirm_order",
			Forward: func(ctx context.Context) (string, error) {
				_, err := f.orders.Transition(ctx, ports.TransitionCommand{
					Number: number, To: orders.StatusConfirmed, Actor: actorSaga, PaymentID: &paymentID,
				})
				return "", err
			},
		},
	}

	return f.coordinator.Execute(ctx, view.CorrelationID+":confirm", steps)
}

// Dispatch assigns a driver to a READY_FOR_PICKUP order and moves it to
// OUT_FOR_DELIVERY. On failure the driver is released and the order stays
// ready for the next attempt.
func (f *OrderFlow) Dispatch(ctx context.Context, number string) error {
	view, err := f.orders.GetOrder(ctx, number)
	if err != nil {
		return err
	}

	var driverID string

	steps := []Step{
		{
			Name: "assign_driver",
			Forward: func(ctx context.Context) (string, error) {
				id, err := f.drivers.Assign(ctx, number)
				if err != nil {
					return "", err
				}
				driverID = id
				return id, nil
			},
			Restore: func(output string) { driverID = output },
			Compensate: func(ctx context.Context) error {
				if driverID == "" {
					return nil
				}
				return f.drivers.Release(ctx, driverID)
			},
		},
		{
			Name: "out_for_delivery",
			Forward: func(ctx context.Context) (string, error) {
				_, err := f.orders.Transition(ctx, ports.TransitionCommand{
					Number: number, To: orders.StatusOutForDelivery, Actor: actorSaga, DriverID: &driverID,
				})
				return "", err
			},
		},
	}

	return f.coordinator.Execute(ctx, view.CorrelationID+":dispatch", steps)
}
