package analytics

import (
	"context"

	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
)

// Reconciler is the safety net behind the stream: it periodically pages
// through events still flagged unprocessed and pushes them through the same
// aggregation path. Events the stream already handled fall out as duplicates.
type Reconciler struct {
	eventRepo ports.EventRepository
	svc       *Service
	logger    *logger.Logger
	metrics   *metrics.Metrics
	batchSize int
}

// NewReconciler constructs the sweep.
func NewReconciler(eventRepo ports.EventRepository, svc *Service, log *logger.Logger, m *metrics.Metrics, batchSize int) *Reconciler {
	return &Reconciler{
		eventRepo: eventRepo,
		svc:       svc,
		logger:    log,
		metrics:   m,
		batchSize: batchSize,
	}
}

// SweepOnce processes one page oldest-first. One failing event does not stop
// the pass; it stays unprocessed and is retried next time.
func (r *Reconciler) SweepOnce(ctx context.Context) (recovered int, failed int, err error) {
	page, err := r.eventRepo.UnprocessedPage(ctx, r.batchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, ev := range page {
		if err := ctx.Err(); err != nil {
			return recovered, failed, err
		}
		if err := r.svc.Aggregate(ctx, ev); err != nil {
			failed++
			r.logger.Error(ctx, "sweep_event_failed", "Sweep failed on event "+ev.EventID, err)
			if r.metrics != nil {
				r.metrics.SweepFailures.Inc()
			}
			continue
		}
		recovered++
		if r.metrics != nil {
			r.metrics.SweepRecovered.Inc()
		}
	}

	if recovered > 0 || failed > 0 {
		r.logger.Info(ctx, "sweep_completed", "Reconciliation sweep finished",
			map[string]any{"recovered": recovered, "failed": failed})
	}
	return recovered, failed, nil
}
