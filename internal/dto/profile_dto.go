package dto

import (
	"time"

	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/models"
)

// SignUpRequest registers a new learner account.
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"omitempty,max=255"`
}

// SignInRequest exchanges credentials for a session.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new session.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ProfileResponse is the public shape of a profile row.
type ProfileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	AvatarURL *string   `json:"avatar_url"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserResponse is the identity account exposed to clients.
type UserResponse struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// SessionResponse carries the tokens issued at sign-in.
type SessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
}

// AuthResponse is returned by sign-up, sign-in and refresh.
type AuthResponse struct {
	User    UserResponse     `json:"user"`
	Session *SessionResponse `json:"session"`
}

// MeResponse is the resolved session of the caller.
type MeResponse struct {
	User    UserResponse    `json:"user"`
	Profile ProfileResponse `json:"profile"`
}

// NewProfileResponse maps a profile model.
func NewProfileResponse(profile models.Profile) ProfileResponse {
	return ProfileResponse{
		ID:        profile.ID,
		Email:     profile.Email,
		FullName:  profile.FullName,
		AvatarURL: profile.AvatarURL,
		Role:      profile.Role,
		CreatedAt: profile.CreatedAt,
		UpdatedAt: profile.UpdatedAt,
	}
}

// NewUserResponse maps an identity user.
func NewUserResponse(user identity.User) UserResponse {
	return UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		FullName:     user.DisplayName(),
		CreatedAt:    user.CreatedAt,
		LastSignInAt: user.LastSignInAt,
	}
}

// NewAuthResponse maps a user and optional session.
func NewAuthResponse(user identity.User, session *identity.Session) AuthResponse {
	response := AuthResponse{User: NewUserResponse(user)}
	if session != nil {
		response.Session = &SessionResponse{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			TokenType:    session.TokenType,
			ExpiresIn:    session.ExpiresIn,
			ExpiresAt:    session.ExpiresAt,
		}
	}
	return response
}

// ProfileUpdateRequest is the self-service profile edit. Roles are not editable
// over HTTP.
type ProfileUpdateRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=255"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=512"`
}

// AuthEventMessage is one frame of the auth event stream.
type AuthEventMessage struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Remote     bool      `json:"remote"`
}
