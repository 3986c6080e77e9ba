package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/observability"
	"github.com/noah-isme/learnhub-api/internal/repository"
)

// IdentityClient is the subset of the identity service used by the gateway.
type IdentityClient interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (identity.AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (identity.AuthResponse, error)
	RefreshSession(ctx context.Context, refreshToken string) (identity.AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (identity.User, error)
}

// Result is returned by sign-up and sign-in. Session is nil while the account
// awaits email confirmation.
type Result struct {
	User    *identity.User    `json:"user"`
	Session *identity.Session `json:"session"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left untouched;
// an empty avatar URL clears it.
type ProfileUpdate struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=255"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=512"`
	Role      *string `json:"role" validate:"omitempty,oneof=student instructor"`
}

// Options tune a gateway.
type Options struct {
	// TokenStore caches the session between calls. Nil disables caching, which is
	// what a shared server-side gateway wants.
	TokenStore TokenStore
	// Relay forwards events to other nodes when set.
	Relay *Relay
	// ProvisionProfiles inserts the profile row at sign-up.
	ProvisionProfiles bool
	Validator         *validator.Validate
}

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	FullName string `validate:"omitempty,max=255"`
}

// Gateway exposes sign-up, sign-in, sign-out, current-user and profile operations
// and notifies subscribers of auth state changes.
type Gateway struct {
	client    IdentityClient
	profiles  repository.ProfileRepository
	store     TokenStore
	relay     *Relay
	provision bool
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time

	mu          sync.Mutex
	nextID      uint64
	subscribers []subscriber
}

// NewGateway constructs an auth gateway.
func NewGateway(client IdentityClient, profiles repository.ProfileRepository, opts Options, logger zerolog.Logger) *Gateway {
	validate := opts.Validator
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &Gateway{
		client:    client,
		profiles:  profiles,
		store:     opts.TokenStore,
		relay:     opts.Relay,
		provision: opts.ProvisionProfiles,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "auth_gateway").Logger(),
		now:       time.Now,
	}
}

// Start begins consuming relayed events. It is a no-op without a relay.
func (g *Gateway) Start(ctx context.Context) {
	if g.relay == nil {
		return
	}
	g.relay.Start(ctx, g.dispatch)
}

// SignUp registers a new account. A session is returned only when the identity
// service does not require email confirmation.
func (g *Gateway) SignUp(ctx context.Context, email, password, fullName string) (Result, error) {
	var result Result
	err := apperr.Guard(func() error {
		input := credentials{
			Email:    strings.TrimSpace(email),
			Password: password,
			FullName: strings.TrimSpace(g.sanitizer.Sanitize(fullName)),
		}
		if err := g.validator.Struct(input); err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "invalid sign up payload")
		}

		var metadata map[string]interface{}
		if input.FullName != "" {
			metadata = map[string]interface{}{"full_name": input.FullName}
		}

		resp, err := g.client.SignUp(ctx, input.Email, input.Password, metadata)
		if err != nil {
			return err
		}

		if g.provision {
			g.provisionProfile(ctx, resp.User, input.FullName)
		}

		result = Result{User: &resp.User, Session: resp.Session}
		if resp.Session != nil {
			g.saveSession(ctx, *resp.Session)
			g.emit(ctx, Event{Type: EventSignedIn, UserID: resp.User.ID, User: result.User, Session: resp.Session})
		}
		return nil
	})

	return result, err
}

// SignIn exchanges email and password for a session.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (Result, error) {
	var result Result
	err := apperr.Guard(func() error {
		input := credentials{Email: strings.TrimSpace(email), Password: password}
		if err := g.validator.Struct(input); err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "invalid sign in payload")
		}

		resp, err := g.client.SignInWithPassword(ctx, input.Email, input.Password)
		if err != nil {
			return err
		}
		if resp.Session == nil {
			return apperr.New(apperr.KindPermission, "no_session", "identity service returned no session")
		}

		g.saveSession(ctx, *resp.Session)
		result = Result{User: &resp.User, Session: resp.Session}
		g.emit(ctx, Event{Type: EventSignedIn, UserID: resp.User.ID, User: result.User, Session: resp.Session})
		return nil
	})

	return result, err
}

// SignOut ends the current session. The cached session is cleared and SIGNED_OUT
// is emitted even when the identity service rejects the call; that error is still
// returned.
func (g *Gateway) SignOut(ctx context.Context) error {
	return apperr.Guard(func() error {
		token, userID := g.accessToken(ctx)

		if g.store != nil {
			if err := g.store.Clear(ctx); err != nil {
				g.logger.Warn().Err(err).Msg("failed to clear cached session")
			}
		}

		var remoteErr error
		if token != "" {
			remoteErr = g.client.SignOut(ctx, token)
			if remoteErr != nil {
				g.logger.Warn().Err(remoteErr).Str("user_id", userID).Msg("remote sign out failed")
			}
		}

		g.emit(ctx, Event{Type: EventSignedOut, UserID: userID})
		return remoteErr
	})
}

// GetCurrentUser returns the user behind the active token, or nil without a session.
func (g *Gateway) GetCurrentUser(ctx context.Context) (*identity.User, error) {
	var user *identity.User
	err := apperr.Guard(func() error {
		token, _ := g.accessToken(ctx)
		if token == "" {
			return nil
		}

		resolved, err := g.client.GetUser(ctx, token)
		if err != nil {
			return err
		}
		user = &resolved
		return nil
	})

	return user, err
}

// CurrentSession returns the cached session, or nil.
func (g *Gateway) CurrentSession(ctx context.Context) (*identity.Session, error) {
	var session *identity.Session
	err := apperr.Guard(func() error {
		if g.store == nil {
			return nil
		}
		loaded, err := g.store.Load(ctx)
		if err != nil {
			return apperr.Wrap(apperr.KindNetwork, err, "load cached session")
		}
		session = loaded
		return nil
	})

	return session, err
}

// RefreshSession exchanges a refresh token for a new session. An empty token uses
// the cached session's refresh token.
func (g *Gateway) RefreshSession(ctx context.Context, refreshToken string) (Result, error) {
	var result Result
	err := apperr.Guard(func() error {
		refreshToken = strings.TrimSpace(refreshToken)
		if refreshToken == "" && g.store != nil {
			cached, err := g.store.Load(ctx)
			if err != nil {
				return apperr.Wrap(apperr.KindNetwork, err, "load cached session")
			}
			if cached != nil {
				refreshToken = cached.RefreshToken
			}
		}
		if refreshToken == "" {
			return apperr.New(apperr.KindPermission, "no_session", "no active session to refresh")
		}

		resp, err := g.client.RefreshSession(ctx, refreshToken)
		if err != nil {
			return err
		}
		if resp.Session == nil {
			return apperr.New(apperr.KindPermission, "no_session", "identity service returned no session")
		}

		g.saveSession(ctx, *resp.Session)
		result = Result{User: &resp.User, Session: resp.Session}
		g.emit(ctx, Event{Type: EventTokenRefreshed, UserID: resp.User.ID, User: result.User, Session: resp.Session})
		return nil
	})

	return result, err
}

// GetUserProfile returns the profile row. A missing row is reported as not found;
// callers decide whether to synthesise one.
func (g *Gateway) GetUserProfile(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	err := apperr.Guard(func() error {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			return apperr.New(apperr.KindValidation, "", "user id is required")
		}

		found, err := g.profiles.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		profile = found
		return nil
	})

	return profile, err
}

// UpdateProfile applies a partial update and emits USER_UPDATED.
func (g *Gateway) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (models.Profile, error) {
	var profile models.Profile
	err := apperr.Guard(func() error {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			return apperr.New(apperr.KindValidation, "", "user id is required")
		}
		check := update
		if check.AvatarURL != nil && strings.TrimSpace(*check.AvatarURL) == "" {
			check.AvatarURL = nil
		}
		if err := g.validator.Struct(check); err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "invalid profile update")
		}

		fields := make(map[string]interface{})
		if update.FullName != nil {
			name := strings.TrimSpace(g.sanitizer.Sanitize(*update.FullName))
			if name == "" {
				fields["full_name"] = nil
			} else {
				fields["full_name"] = name
			}
		}
		if update.AvatarURL != nil {
			if url := strings.TrimSpace(*update.AvatarURL); url == "" {
				fields["avatar_url"] = nil
			} else {
				fields["avatar_url"] = url
			}
		}
		if update.Role != nil {
			fields["role"] = *update.Role
		}

		updated, err := g.profiles.Update(ctx, userID, fields)
		if err != nil {
			return err
		}
		profile = updated

		if len(fields) > 0 {
			g.emit(ctx, Event{Type: EventUserUpdated, UserID: userID})
		}
		return nil
	})

	return profile, err
}

// OnAuthStateChange registers a callback and returns its unsubscribe function.
// Callbacks run synchronously, in registration order, for every event.
func (g *Gateway) OnAuthStateChange(callback Callback) func() {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.subscribers = append(g.subscribers, subscriber{id: id, callback: callback})
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for i, sub := range g.subscribers {
				if sub.id == id {
					g.subscribers = append(g.subscribers[:i:i], g.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

func (g *Gateway) emit(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = g.now().UTC()
	}

	g.dispatch(ctx, event)

	if g.relay != nil {
		if err := g.relay.Publish(ctx, event); err != nil {
			g.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to relay auth event")
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, event Event) {
	origin := "local"
	if event.Remote {
		origin = "relay"
	}
	observability.AuthEvents().WithLabelValues(string(event.Type), origin).Inc()

	g.mu.Lock()
	subscribers := make([]subscriber, len(g.subscribers))
	copy(subscribers, g.subscribers)
	g.mu.Unlock()

	for _, sub := range subscribers {
		g.invoke(ctx, sub, event)
	}
}

func (g *Gateway) invoke(ctx context.Context, sub subscriber, event Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			g.logger.Error().Interface("panic", recovered).Str("event", string(event.Type)).Msg("auth state callback panicked")
		}
	}()
	sub.callback(ctx, event)
}

func (g *Gateway) accessToken(ctx context.Context) (string, string) {
	userID, _ := UserIDFromContext(ctx)
	if token, ok := AccessTokenFromContext(ctx); ok {
		return token, userID
	}
	if g.store == nil {
		return "", userID
	}

	session, err := g.store.Load(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("failed to load cached session")
		return "", userID
	}
	if session == nil {
		return "", userID
	}
	if userID == "" {
		userID = session.User.ID
	}
	return session.AccessToken, userID
}

func (g *Gateway) saveSession(ctx context.Context, session identity.Session) {
	if g.store == nil {
		return
	}
	if err := g.store.Save(ctx, session); err != nil {
		g.logger.Warn().Err(err).Msg("failed to cache session")
	}
}

func (g *Gateway) provisionProfile(ctx context.Context, user identity.User, fullName string) {
	profile := models.Profile{
		ID:    user.ID,
		Email: user.Email,
		Role:  models.RoleStudent,
	}
	if fullName != "" {
		profile.FullName = &fullName
	}

	if err := g.profiles.Create(ctx, &profile); err != nil {
		g.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to provision profile")
	}
}
