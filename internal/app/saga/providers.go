package saga

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/shared/logger"
)

// LogPaymentGateway stands in for the real payment provider: every
// reservation is approved and logged. Swapping in a provider client means
// implementing ports.PaymentGateway, nothing else changes.
type LogPaymentGateway struct {
	logger *logger.Logger
}

// NewLogPaymentGateway constructs the stand-in gateway.
func NewLogPaymentGateway(log *logger.Logger) *LogPaymentGateway {
	return &LogPaymentGateway{logger: log}
}

func (g *LogPaymentGateway) Reserve(ctx context.Context, orderNumber string, amount orders.Money) (string, error) {
	id := "pay_" + shortID()
	g.logger.Info(ctx, "payment_reserved",
		"Reserved payment for "+orderNumber,
		map[string]any{"order_number": orderNumber, "payment_id": id, "amount": amount.ToFloat2()})
	return id, nil
}

func (g *LogPaymentGateway) Release(ctx context.Context, paymentID string) error {
	g.logger.Info(ctx, "payment_released",
		"Released payment reservation "+paymentID,
		map[string]any{"payment_id": paymentID})
	return nil
}

// LogDriverPool hands out synthetic driver ids and logs each assignment.
type LogDriverPool struct {
	logger *logger.Logger
}

// NewLogDriverPool constructs the stand-in pool.
func NewLogDriverPool(log *logger.Logger) *LogDriverPool {
	return &LogDriverPool{logger: log}
}

func (p *LogDriverPool) Assign(ctx context.Context, orderNumber string) (string, error) {
	id := "drv_" + shortID()
	p.logger.Info(ctx, "driver_assigned",
		"Assigned driver to "+orderNumber,
		map[string]any{"order_number": orderNumber, "driver_id": id})
	return id, nil
}

func (p *LogDriverPool) Release(ctx context.Context, driverID string) error {
	p.logger.Info(ctx, "driver_released",
		"Released driver "+driverID,
		map[string]any{"driver_id": driverID})
	return nil
}

func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
