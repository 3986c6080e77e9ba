// Package session keeps the signed-in state of one client: the identity user,
// the profile row and the token pair, kept current by the gateway's auth events.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/auth"
	"github.com/noah-isme/learnhub-api/internal/fallback"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/observability"
)

const subscriberBufferSize = 8

// Gateway is the part of the auth gateway the session relies on.
type Gateway interface {
	GetCurrentUser(ctx context.Context) (*identity.User, error)
	CurrentSession(ctx context.Context) (*identity.Session, error)
	GetUserProfile(ctx context.Context, userID string) (models.Profile, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(callback auth.Callback) func()
}

// Navigator moves the client somewhere after sign-out.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// State is a snapshot of the session.
type State struct {
	User    *identity.User
	Profile *models.Profile
	Session *identity.Session
	Loading bool
}

// SignedIn reports whether a user is present.
func (s State) SignedIn() bool {
	return s.User != nil
}

// Options configure a Context.
type Options struct {
	Policy    fallback.Policy
	Navigator Navigator
	HomePath  string
	Logger    zerolog.Logger
}

// Context owns the session state of a single client.
type Context struct {
	gateway   Gateway
	policy    fallback.Policy
	navigator Navigator
	homePath  string
	logger    zerolog.Logger

	mu          sync.RWMutex
	state       State
	subscribers map[chan State]struct{}
	unsubscribe func()
	closed      bool
	// ready is set once Start has resolved the initial state; events raised
	// before that are held in pending and applied afterwards.
	ready   bool
	pending []auth.Event
}

// New builds a Context in the loading state. Call Start to resolve it.
func New(gateway Gateway, opts Options) *Context {
	policy := opts.Policy
	if policy == nil {
		policy = fallback.New(true)
	}
	home := opts.HomePath
	if home == "" {
		home = "/"
	}

	return &Context{
		gateway:     gateway,
		policy:      policy,
		navigator:   opts.Navigator,
		homePath:    home,
		logger:      opts.Logger.With().Str("component", "session").Logger(),
		state:       State{Loading: true},
		subscribers: make(map[chan State]struct{}),
	}
}

// Start follows auth events and resolves the current user, session and profile,
// then leaves the loading state. Events raised while resolving are applied once
// the initial state is set. The subscription lasts until Close.
func (c *Context) Start(ctx context.Context) error {
	return apperr.Guard(func() error {
		unsubscribe := c.gateway.OnAuthStateChange(c.onEvent)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			unsubscribe()
			return nil
		}
		c.unsubscribe = unsubscribe
		c.mu.Unlock()

		user, err := c.gateway.GetCurrentUser(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to resolve current user")
			user = nil
		}

		var current *identity.Session
		if user != nil {
			current, err = c.gateway.CurrentSession(ctx)
			if err != nil {
				c.logger.Warn().Err(err).Msg("failed to resolve current session")
			}
		}

		var profile *models.Profile
		if user != nil {
			profile = c.resolveProfile(ctx, *user)
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.state = State{User: user, Profile: profile, Session: current, Loading: false}
		c.ready = true
		pending := c.pending
		c.pending = nil
		snapshot := c.state
		c.mu.Unlock()
		c.publish(snapshot)

		for _, event := range pending {
			c.handleEvent(ctx, event)
		}
		return nil
	})
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe streams state changes. Slow readers miss intermediate states rather
// than block the session. The returned func releases the channel.
func (c *Context) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBufferSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subscribers[ch]; ok {
				delete(c.subscribers, ch)
				close(ch)
			}
		})
	}
}

// SignOut clears the local state before contacting the identity service and
// navigates home whatever the outcome. The remote error is returned.
func (c *Context) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.state = State{Loading: false}
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)

	err := apperr.Guard(func() error {
		return c.gateway.SignOut(ctx)
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("remote sign out failed")
	}

	if c.navigator != nil {
		c.navigator.Navigate(c.homePath)
	}
	return err
}

// Close stops following auth events and releases all subscribers.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = nil
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	for ch := range c.subscribers {
		delete(c.subscribers, ch)
		close(ch)
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Context) onEvent(ctx context.Context, event auth.Event) {
	c.mu.Lock()
	if !c.ready {
		if !c.closed {
			c.pending = append(c.pending, event)
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.handleEvent(ctx, event)
}

func (c *Context) handleEvent(ctx context.Context, event auth.Event) {
	if event.Remote {
		return
	}

	if event.Type == auth.EventSignedOut {
		c.mu.Lock()
		c.state = State{Loading: false}
		snapshot := c.state
		c.mu.Unlock()
		c.publish(snapshot)
		return
	}

	user := event.User
	if user == nil {
		current, err := c.gateway.GetCurrentUser(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to resolve user after auth event")
		}
		user = current
	}

	var profile *models.Profile
	if user != nil {
		profile = c.resolveProfile(ctx, *user)
	}

	c.mu.Lock()
	c.state.User = user
	c.state.Profile = profile
	if event.Session != nil {
		current := *event.Session
		c.state.Session = &current
	} else if user == nil {
		c.state.Session = nil
	}
	c.state.Loading = false
	snapshot := c.state
	c.mu.Unlock()
	c.publish(snapshot)
}

// resolveProfile never leaves a signed-in user without a profile: a missing row or
// a failed fetch yields the policy's synthetic student profile.
func (c *Context) resolveProfile(ctx context.Context, user identity.User) *models.Profile {
	profile, err := c.gateway.GetUserProfile(ctx, user.ID)
	if err == nil {
		return &profile
	}

	if !apperr.IsNotFound(err) {
		c.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to fetch profile")
	}
	observability.FallbackServed().WithLabelValues("session.profile").Inc()

	synthetic := c.policy.Profile(user)
	return &synthetic
}

func (c *Context) publish(state State) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for ch := range c.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}
