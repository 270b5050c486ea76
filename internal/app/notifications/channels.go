package notifications

import (
	"context"

	domain "delivery-platform/internal/domain/notifications"
	"delivery-platform/internal/shared/logger"
)

// ChannelSender delivers one notification over one channel. A nil error
// means the channel accepted the message.
type ChannelSender interface {
	Deliver(ctx context.Context, n *domain.Notification) error
}

// retryPolicy bounds delivery attempts per channel.
type retryPolicy struct {
	maxAttempts int
	backoff     func(attempt int) int // milliseconds before attempt n+1
}

// policies per channel. In-app "delivery" is just the row, so one attempt
// always suffices.
var policies = map[domain.Channel]retryPolicy{
	domain.ChannelEmail: {maxAttempts: 3, backoff: func(a int) int { return 500 * (1 << a) }},
	domain.ChannelSMS:   {maxAttempts: 3, backoff: func(a int) int { return 500 * (1 << a) }},
	domain.ChannelPush:  {maxAttempts: 2, backoff: func(a int) int { return 250 * (1 << a) }},
	domain.ChannelInApp: {maxAttempts: 1, backoff: func(int) int { return 0 }},
}

// LogSender stands in for the real email/SMS/push providers: it emits the
// delivery as a structured log line. Swapping in a provider client means
// implementing ChannelSender, nothing else changes.
type LogSender struct {
	channel domain.Channel
	logger  *logger.Logger
}

// NewLogSender constructs a logging sender for the channel.
func NewLogSender(channel domain.Channel, log *logger.Logger) *LogSender {
	return &LogSender{channel: channel, logger: log}
}

func (s *LogSender) Deliver(ctx context.Context, n *domain.Notification) error {
	s.logger.Info(ctx, "notification_delivered",
		"Delivered "+n.Template+" via "+string(s.channel),
		map[string]any{
			"notification_id": n.NotificationID,
			"recipient":       n.Recipient,
			"channel":         string(s.channel),
			"template":        n.Template,
		})
	return nil
}

// InAppSender succeeds immediately: the persisted row is the delivery, the
// recipient reads it from the feed endpoint.
type InAppSender struct{}

func (InAppSender) Deliver(ctx context.Context, n *domain.Notification) error {
	return nil
}

// DefaultSenders wires the stand-in senders for every channel.
func DefaultSenders(log *logger.Logger) map[domain.Channel]ChannelSender {
	return map[domain.Channel]ChannelSender{
		domain.ChannelEmail: NewLogSender(domain.ChannelEmail, log),
		domain.ChannelSMS:   NewLogSender(domain.ChannelSMS, log),
		domain.ChannelPush:  NewLogSender(domain.ChannelPush, log),
		domain.ChannelInApp: InAppSender{},
	}
}
