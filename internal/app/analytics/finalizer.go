package analytics

import (
	"context"
	"time"

	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
)

// Finalizer closes out past days: once a day's settlement window has passed
// and no event of that day is still unprocessed, it recomputes the derived
// rates and flags the row finalized. Finalization is idempotent, so a crash
// between recompute and flag just repeats the work.
type Finalizer struct {
	metricsRepo ports.MetricsRepository
	eventRepo   ports.EventRepository
	logger      *logger.Logger
	grace       time.Duration
	now         func() time.Time
}

// NewFinalizer constructs the daily finalizer.
func NewFinalizer(metricsRepo ports.MetricsRepository, eventRepo ports.EventRepository, log *logger.Logger, grace time.Duration) *Finalizer {
	return &Finalizer{
		metricsRepo: metricsRepo,
		eventRepo:   eventRepo,
		logger:      log,
		grace:       grace,
		now:         time.Now,
	}
}

// FinalizeOnce visits every unfinalized past day and closes those that are
// settled. Days with a pending backlog are left open for the next pass.
func (f *Finalizer) FinalizeOnce(ctx context.Context) (finalized int, err error) {
	now := f.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	days, err := f.metricsRepo.UnfinalizedDaysBefore(ctx, today)
	if err != nil {
		return 0, err
	}

	for _, day := range days {
		dayEnd := day.Add(24 * time.Hour)

		// settlement fence: late events within the grace window may still
		// arrive, so the day is not closed yet
		if now.Before(dayEnd.Add(f.grace)) {
			continue
		}
		pending, err := f.eventRepo.UnprocessedCountBetween(ctx, day, dayEnd)
		if err != nil {
			return finalized, err
		}
		if pending > 0 {
			f.logger.Info(ctx, "finalize_deferred", "Day has an unprocessed backlog, deferring",
				map[string]any{"day": day.Format("2006-01-02"), "pending": pending})
			continue
		}

		m, err := f.metricsRepo.Get(ctx, day)
		if err != nil {
			return finalized, err
		}
		if m == nil || m.Finalized {
			continue
		}

		m.Recompute()
		if err := f.metricsRepo.SaveFinal(ctx, m); err != nil {
			return finalized, err
		}
		finalized++

		f.logger.Info(ctx, "day_finalized", "Daily metrics finalized for "+day.Format("2006-01-02"),
			map[string]any{
				"total_orders":    m.TotalOrders,
				"completion_rate": m.CompletionRate,
				"gross_revenue":   m.GrossRevenue.ToFloat2(),
			})
	}

	return finalized, nil
}
