package notifications

import "time"

// Channel identifies a delivery channel with its own delivery policy.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// Status of a per-recipient, per-channel delivery record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
	StatusRead    Status = "READ"
)

// Notification is one delivery record. Attempts are bounded and logged;
// exhausted deliveries are marked FAILED, never silently dropped.
type Notification struct {
	ID             int64
	NotificationID string // UUID, stable across retries
	Recipient      string
	Channel        Channel
	Template       string
	Payload        []byte // JSON passed to the template
	Status         Status
	Attempts       int
	LastError      *string
	CreatedAt      time.Time
	SentAt         *time.Time
	ReadAt         *time.Time
}

// ValidChannel reports whether s names a known channel.
func ValidChannel(s string) bool {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}
