package identity

import (
	"strings"
	"time"
)

// User is the account record held by the hosted identity service.
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	Role         string                 `json:"role,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	LastSignInAt *time.Time             `json:"last_sign_in_at,omitempty"`
}

// DisplayName returns the name captured at sign-up, if any.
func (u User) DisplayName() string {
	for _, key := range []string{"full_name", "name"} {
		if value, ok := u.UserMetadata[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// Session is a token pair issued by the identity service.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expiry returns when the access token stops being valid.
func (s Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return time.Time{}
}

// AuthResponse is returned by sign-up and sign-in. Session is nil when the
// service requires email confirmation before issuing tokens.
type AuthResponse struct {
	User    User     `json:"user"`
	Session *Session `json:"session"`
}
