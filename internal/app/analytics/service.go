package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"delivery-platform/internal/domain/analytics"
	"delivery-platform/internal/domain/events"
	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/contracts"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
)

// Service applies order events to the daily aggregates. Aggregate is safe to
// call any number of times per event: the consumer ledger absorbs duplicates
// from the stream, the sweep, and redeliveries alike.
type Service struct {
	uow         ports.UnitOfWork
	eventRepo   ports.EventRepository
	ledger      ports.ConsumerLedger
	metricsRepo ports.MetricsRepository
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

// NewService constructs the analytics consumer service.
func NewService(uow ports.UnitOfWork, eventRepo ports.EventRepository, ledger ports.ConsumerLedger,
	metricsRepo ports.MetricsRepository, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		uow:         uow,
		eventRepo:   eventRepo,
		ledger:      ledger,
		metricsRepo: metricsRepo,
		logger:      log,
		metrics:     m,
	}
}

// Aggregate processes one event exactly once. Ledger insert, counter
// accumulation, and the processed flag commit in a single transaction, so a
// crash at any point leaves the event either fully applied or fully pending.
func (s *Service) Aggregate(ctx context.Context, ev events.OrderEvent) error {
	outcome := "processed"
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		first, err := s.ledger.MarkOnce(txCtx, ev.EventID, events.ConsumerAnalytics)
		if err != nil {
			return fmt.Errorf("ledger insert: %w", err)
		}
		if !first {
			// already applied; just make sure the processed flag caught up
			outcome = "duplicate"
			return s.eventRepo.MarkProcessed(txCtx, ev.EventID)
		}

		delta, err := s.deltaFor(txCtx, ev)
		if err != nil {
			return err
		}
		if err := s.metricsRepo.Accumulate(txCtx, analytics.Day(ev.EventTime), delta); err != nil {
			return fmt.Errorf("accumulate metrics: %w", err)
		}
		return s.eventRepo.MarkProcessed(txCtx, ev.EventID)
	})

	if s.metrics != nil {
		if err != nil {
			outcome = "error"
		}
		s.metrics.EventsProcessed.WithLabelValues(events.ConsumerAnalytics, outcome).Inc()
	}
	return err
}

// deltaFor translates one event into its counter contribution.
func (s *Service) deltaFor(ctx context.Context, ev events.OrderEvent) (analytics.Delta, error) {
	var payload contracts.EventPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return analytics.Delta{}, fmt.Errorf("decode payload of %s: %w", ev.EventID, err)
	}

	var d analytics.Delta
	switch ev.Type {
	case events.TypeOrderCreated:
		d.TotalOrders = 1
		prior, err := s.eventRepo.CountCustomerOrdersBefore(ctx, payload.CustomerID, ev.EventTime)
		if err != nil {
			return analytics.Delta{}, fmt.Errorf("count prior orders: %w", err)
		}
		if prior == 0 {
			d.NewCustomers = 1
		} else {
			d.RepeatCustomers = 1
		}
	case events.TypeOrderDelivered:
		d.DeliveredOrders = 1
		d.GrossRevenue = orders.Money(payload.TotalCents)
	case events.TypeOrderCancelled:
		d.CancelledOrders = 1
	case events.TypeOrderFailed:
		d.FailedOrders = 1
	}
	return d, nil
}
