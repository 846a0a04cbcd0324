package domain

import "time"

// NotificationKind selects the delivery channel of a notification job.
type NotificationKind string

const (
	NotificationKindEmail NotificationKind = "email"
	NotificationKindSMS   NotificationKind = "sms"
)

// NotificationJob is a durable description of an outbound message.
type NotificationJob struct {
	ID         string            `json:"id"`
	Kind       NotificationKind  `json:"kind"`
	Realm      string            `json:"realm"`
	To         string            `json:"to"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body,omitempty"`
	Template   string            `json:"template,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// TokenRevokedEvent is broadcast so every instance can extend its local blacklist filter.
type TokenRevokedEvent struct {
	EventID   string    `json:"event_id"`
	JTI       string    `json:"jti"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
