package analytics

import (
	"context"
	"time"

	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
)

// Cleanup purges processed events past the retention window. Unprocessed
// events are never touched regardless of age; losing them would silently
// hole the aggregates.
type Cleanup struct {
	eventRepo     ports.EventRepository
	logger        *logger.Logger
	retentionDays int
	now           func() time.Time
}

// NewCleanup constructs the retention purge.
func NewCleanup(eventRepo ports.EventRepository, log *logger.Logger, retentionDays int) *Cleanup {
	return &Cleanup{
		eventRepo:     eventRepo,
		logger:        log,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// RunOnce deletes processed events older than the retention cutoff.
func (c *Cleanup) RunOnce(ctx context.Context) (int64, error) {
	cutoff := c.now().UTC().AddDate(0, 0, -c.retentionDays)

	deleted, err := c.eventRepo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		c.logger.Info(ctx, "events_purged", "Purged processed events past retention",
			map[string]any{"deleted": deleted, "cutoff": cutoff.Format(time.RFC3339)})
	}
	return deleted, nil
}
