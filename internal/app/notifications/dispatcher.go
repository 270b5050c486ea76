package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "delivery-platform/internal/domain/notifications"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
)

type job struct {
	ctx context.Context
	n   *domain.Notification
}

// Dispatcher runs a worker pool that delivers queued notifications with a
// bounded, per-channel retry policy. Every outcome lands in the repository:
// SENT on success, FAILED with the last error after exhaustion.
type Dispatcher struct {
	repo    ports.NotificationRepository
	senders map[domain.Channel]ChannelSender
	logger  *logger.Logger
	metrics *metrics.Metrics

	jobs    chan job
	workers int
	wg      sync.WaitGroup
	sleep   func(ctx context.Context, d time.Duration) // test seam
	now     func() time.Time
}

// NewDispatcher constructs the pool; Start must be called before Enqueue.
func NewDispatcher(repo ports.NotificationRepository, senders map[domain.Channel]ChannelSender,
	log *logger.Logger, m *metrics.Metrics, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		repo:    repo,
		senders: senders,
		logger:  log,
		metrics: m,
		jobs:    make(chan job, 256),
		workers: workers,
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// Start launches the workers; they drain the queue until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-d.jobs:
					d.deliver(j.ctx, j.n)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue hands a PENDING notification to the pool. A full queue delivers
// inline rather than dropping.
func (d *Dispatcher) Enqueue(ctx context.Context, n *domain.Notification) {
	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), n: n}:
	default:
		d.deliver(ctx, n)
	}
}

// deliver runs the bounded retry loop for one notification.
func (d *Dispatcher) deliver(ctx context.Context, n *domain.Notification) {
	sender, ok := d.senders[n.Channel]
	if !ok {
		d.fail(ctx, n, 0, fmt.Sprintf("no sender for channel %q", n.Channel))
		return
	}
	policy := policies[n.Channel]

	var lastErr error
	for attempt := 1; attempt <= policy.maxAttempts; attempt++ {
		lastErr = sender.Deliver(ctx, n)
		if lastErr == nil {
			if err := d.repo.MarkSent(ctx, n.NotificationID, d.now().UTC()); err != nil {
				d.logger.Error(ctx, "notification_update_failed", "Failed to mark notification sent", err)
			}
			if d.metrics != nil {
				d.metrics.NotificationsSent.WithLabelValues(string(n.Channel), "sent").Inc()
			}
			return
		}

		d.logger.Error(ctx, "delivery_retry",
			fmt.Sprintf("Delivery attempt %d/%d failed for %s", attempt, policy.maxAttempts, n.NotificationID), lastErr)

		if attempt < policy.maxAttempts {
			msg := lastErr.Error()
			if err := d.repo.RecordAttempt(ctx, n.NotificationID, attempt, &msg); err != nil {
				d.logger.Error(ctx, "notification_update_failed", "Failed to record delivery attempt", err)
			}
			d.sleep(ctx, time.Duration(policy.backoff(attempt))*time.Millisecond)
		}
	}

	d.fail(ctx, n, policy.maxAttempts, lastErr.Error())
}

func (d *Dispatcher) fail(ctx context.Context, n *domain.Notification, attempts int, reason string) {
	if err := d.repo.MarkFailed(ctx, n.NotificationID, attempts, reason); err != nil {
		d.logger.Error(ctx, "notification_update_failed", "Failed to mark notification failed", err)
	}
	if d.metrics != nil {
		d.metrics.NotificationsSent.WithLabelValues(string(n.Channel), "failed").Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
