package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "delivery-platform/internal/domain/notifications"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/shared/logger"
)

// Service accepts delivery requests and owns the read-side queries for the
// in-app feed. Send only records and enqueues; the dispatcher does the
// actual delivery, so a slow channel never blocks the caller.
type Service struct {
	repo       ports.NotificationRepository
	dispatcher *Dispatcher
	logger     *logger.Logger
	now        func() time.Time
}

// NewService constructs the notification service.
func NewService(repo ports.NotificationRepository, dispatcher *Dispatcher, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     log,
		now:        time.Now,
	}
}

// Send records a PENDING notification and hands it to the dispatcher.
// The returned id can be used to mark an in-app notification read later.
func (s *Service) Send(ctx context.Context, cmd ports.SendNotificationCommand) (string, error) {
	n, err := s.Record(ctx, cmd)
	if err != nil {
		return "", err
	}
	s.Dispatch(ctx, n)
	return n.NotificationID, nil
}

// Record persists the PENDING row without dispatching it. The queue consumer
// records a whole fan-out inside one transaction and dispatches after the
// commit, so a failed insert requeues the event instead of dropping part of
// the fan-out.
func (s *Service) Record(ctx context.Context, cmd ports.SendNotificationCommand) (*domain.Notification, error) {
	if strings.TrimSpace(cmd.Recipient) == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if !domain.ValidChannel(string(cmd.Channel)) {
		return nil, fmt.Errorf("unknown channel %q", cmd.Channel)
	}

	n := &domain.Notification{
		NotificationID: uuid.NewString(),
		Recipient:      cmd.Recipient,
		Channel:        cmd.Channel,
		Template:       cmd.Template,
		Payload:        cmd.Payload,
		Status:         domain.StatusPending,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// Dispatch hands a recorded notification to the dispatcher pool.
func (s *Service) Dispatch(ctx context.Context, n *domain.Notification) {
	s.dispatcher.Enqueue(ctx, n)
}

// ListInApp returns the recipient's in-app feed, newest first.
func (s *Service) ListInApp(ctx context.Context, recipient string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListInApp(ctx, recipient, limit)
}

// UnreadCount counts the recipient's unread in-app notifications.
func (s *Service) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	return s.repo.UnreadCount(ctx, recipient)
}

// MarkRead flips one in-app notification to READ; applied=false means it was
// read already.
func (s *Service) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	return s.repo.MarkRead(ctx, notificationID, s.now().UTC())
}

// MarkAllRead flips every unread in-app notification of the recipient and
// returns how many rows changed.
func (s *Service) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipient, s.now().UTC())
}

// DeliveryStats aggregates delivery outcomes by channel and status.
func (s *Service) DeliveryStats(ctx context.Context, since time.Time) ([]ports.DeliveryStat, error) {
	return s.repo.DeliveryStats(ctx, since)
}
