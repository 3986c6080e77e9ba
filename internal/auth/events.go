package auth

import (
	"context"
	"time"

	"github.com/noah-isme/learnhub-api/internal/identity"
)

// EventType names an auth state change.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event describes one auth state change. Session is only set for events raised
// by this process; relayed events never carry tokens.
type Event struct {
	Type       EventType         `json:"type"`
	UserID     string            `json:"user_id"`
	User       *identity.User    `json:"user,omitempty"`
	Session    *identity.Session `json:"-"`
	OccurredAt time.Time         `json:"occurred_at"`
	Remote     bool              `json:"remote"`
}

// Callback receives auth state changes.
type Callback func(ctx context.Context, event Event)

type subscriber struct {
	id       uint64
	callback Callback
}
