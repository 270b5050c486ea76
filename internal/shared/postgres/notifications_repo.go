package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-platform/internal/domain/notifications"
	"delivery-platform/internal/ports"
)

// NotificationsRepo persists per-recipient delivery records.
type NotificationsRepo struct {
	pool *pgxpool.Pool
}

// NewNotificationsRepo constructs a new NotificationsRepo.
func NewNotificationsRepo(pool *pgxpool.Pool) ports.NotificationRepository {
	return &NotificationsRepo{pool: pool}
}

// Create inserts a PENDING delivery record.
func (r *NotificationsRepo) Create(ctx context.Context, n *notifications.Notification) error {
	q := querier(ctx, r.pool)

	return q.QueryRow(ctx, `
		INSERT INTO notifications
		    (notification_id, recipient_id, channel, template, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		n.NotificationID, n.Recipient, n.Channel, n.Template, n.Payload, n.Status, n.Attempts, n.CreatedAt,
	).Scan(&n.ID)
}

// RecordAttempt logs a transient delivery failure without changing status.
func (r *NotificationsRepo) RecordAttempt(ctx context.Context, notificationID string, attempts int, lastError *string) error {
	q := querier(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE notifications SET attempts = $2, last_error = $3 WHERE notification_id = $1
	`, notificationID, attempts, lastError)
	return err
}

// MarkSent finalizes a successful delivery.
func (r *NotificationsRepo) MarkSent(ctx context.Context, notificationID string, at time.Time) error {
	q := querier(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE notifications SET status = $2, sent_at = $3 WHERE notification_id = $1
	`, notificationID, notifications.StatusSent, at)
	return err
}

// MarkFailed finalizes an exhausted delivery; the record stays visible in
// the delivery stats instead of being dropped.
func (r *NotificationsRepo) MarkFailed(ctx context.Context, notificationID string, attempts int, lastError string) error {
	q := querier(ctx, r.pool)
	_, err := q.Exec(ctx, `
		UPDATE notifications SET status = $2, attempts = $3, last_error = $4 WHERE notification_id = $1
	`, notificationID, notifications.StatusFailed, attempts, lastError)
	return err
}

// ListInApp returns the recipient's in-app notifications, newest first.
func (r *NotificationsRepo) ListInApp(ctx context.Context, recipient string, limit int) ([]notifications.Notification, error) {
	q := querier(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT id, notification_id, recipient_id, channel, template, payload,
		       status, attempts, last_error, created_at, sent_at, read_at
		FROM notifications
		WHERE recipient_id = $1 AND channel = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, recipient, notifications.ChannelInApp, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notifications.Notification
	for rows.Next() {
		var n notifications.Notification
		if err := rows.Scan(
			&n.ID, &n.NotificationID, &n.Recipient, &n.Channel, &n.Template, &n.Payload,
			&n.Status, &n.Attempts, &n.LastError, &n.CreatedAt, &n.SentAt, &n.ReadAt,
		); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadCount counts in-app notifications not yet read.
func (r *NotificationsRepo) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	q := querier(ctx, r.pool)

	var n int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND channel = $2 AND status IN ($3, $4)
	`, recipient, notifications.ChannelInApp, notifications.StatusPending, notifications.StatusSent).Scan(&n)
	return n, err
}

// MarkRead flips one in-app notification to READ. Idempotent: an
// already-read notification reports applied=false without error.
func (r *NotificationsRepo) MarkRead(ctx context.Context, notificationID string, at time.Time) (bool, error) {
	q := querier(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE notifications
		SET status = $2, read_at = $3
		WHERE notification_id = $1 AND channel = $4 AND status <> $2
	`, notificationID, notifications.StatusRead, at, notifications.ChannelInApp)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAllRead flips every unread in-app notification of the recipient.
// A second call in a row updates zero rows.
func (r *NotificationsRepo) MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error) {
	q := querier(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE notifications
		SET status = $2, read_at = $3
		WHERE recipient_id = $1 AND channel = $4 AND status IN ($5, $6)
	`, recipient, notifications.StatusRead, at, notifications.ChannelInApp,
		notifications.StatusPending, notifications.StatusSent)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeliveryStats aggregates delivery outcomes by channel and status.
func (r *NotificationsRepo) DeliveryStats(ctx context.Context, since time.Time) ([]ports.DeliveryStat, error) {
	q := querier(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT channel, status, COUNT(*)
		FROM notifications
		WHERE created_at >= $1
		GROUP BY channel, status
		ORDER BY channel, status
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.DeliveryStat
	for rows.Next() {
		var s ports.DeliveryStat
		if err := rows.Scan(&s.Channel, &s.Status, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
