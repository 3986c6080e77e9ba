package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/auth"
	"github.com/noah-isme/learnhub-api/internal/database"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/identity/identitytest"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
)

type gatewayFixture struct {
	gateway  *auth.Gateway
	server   *identitytest.Server
	profiles repository.ProfileRepository
	store    *auth.MemoryTokenStore
}

func newGatewayFixture(t *testing.T, opts auth.Options) gatewayFixture {
	t.Helper()

	server := identitytest.NewServer()
	t.Cleanup(server.Close)

	client, err := identity.New(identity.Config{BaseURL: server.URL, Timeout: 2 * time.Second}, zerolog.Nop())
	require.NoError(t, err)

	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	profiles := repository.NewProfileRepository(db)

	store := auth.NewMemoryTokenStore()
	if opts.TokenStore == nil {
		opts.TokenStore = store
	}

	return gatewayFixture{
		gateway:  auth.NewGateway(client, profiles, opts, zerolog.Nop()),
		server:   server,
		profiles: profiles,
		store:    store,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []auth.Event
}

func (r *recorder) record(_ context.Context, event auth.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types() []auth.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]auth.EventType, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}

func TestGatewaySignUpSignInAndCurrentUser(t *testing.T) {
	fx := newGatewayFixture(t, auth.Options{})
	ctx := context.Background()

	events := &recorder{}
	fx.gateway.OnAuthStateChange(events.record)

	signedUp, err := fx.gateway.SignUp(ctx, "alice@example.com", "s3cret!", "")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", signedUp.User.Email)
	require.NotNil(t, signedUp.Session)

	signedIn, err := fx.gateway.SignIn(ctx, "alice@example.com", "s3cret!")
	require.NoError(t, err)
	require.Equal(t, signedUp.User.ID, signedIn.User.ID)

	user, err := fx.gateway.GetCurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "alice@example.com", user.Email)

	session, err := fx.gateway.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, signedIn.Session.AccessToken, session.AccessToken)

	require.Equal(t, []auth.EventType{auth.EventSignedIn, auth.EventSignedIn}, events.types())

	_, err = fx.gateway.GetUserProfile(ctx, signedUp.User.ID)
	require.True(t, apperr.IsNotFound(err))
}

func TestGatewayWithoutSessionHasNoUser(t *testing.T) {
	fx := newGatewayFixture(t, auth.Options{})

	user, err := fx.gateway.GetCurrentUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, user)

	session, err := fx.gateway.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestGatewayRejectsInvalidCredentials(t *testing.T) {
	fx := newGatewayFixture(t, auth.Options{})
	ctx := context.Background()

	_, err := fx.gateway.SignUp(ctx, "not-an-email", "s3cret!", "")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Zero(t, fx.server.Calls("signup"))

	_, err = fx.gateway.SignIn(ctx, "alice@example.com", "wrong-password")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Equal(t, 1, fx.server.Calls("token"))
}

func TestGatewayProvisionsProfilesWhenEnabled(t *testing.T) {
	fx := newGatewayFixture(t, auth.Options{ProvisionProfiles: true})
	ctx := context.Background()

	result, err := fx.gateway.SignUp(ctx, "bob@example.com", "s3cret!", "Bob <b>Builder</b>")
	require.NoError(t, err)

	profile, err := fx.gateway.GetUserProfile(ctx, result.User.ID)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", profile.Email)
	require.Equal(t, models.RoleStudent, profile.Role)
	require.Equal(t, "Bob Builder", *profile.FullName)
	require.Equal(t, "Bob Builder", result.User.DisplayName())
}

func TestGatewaySignOutClearsSessionWhenRemoteFails(t *testing.T) {
	fx := newGatewayFixture(t, auth.Options{})
	ctx := context.Background()

	result, err := fx.gateway.SignUp(ctx, "carol@example.com", "s3cret!", "")
	require.NoError(t, err)

	events := &recorder{}
	fx.gateway.OnAuthStateChange(events.record)

	fx.server.SetFailLogout(true)
	err = fx.gateway.SignOut(ctx)
	require.Error(t, err)
	require.Equal(t, apperr.KindNetwork, apperr.KindOf(err))

	session, err := fx.gateway.CurrentSession(ctx)
	require.NoError(t, err)
	require.Nil(t, session)

	user, err := fx.gateway.GetCurrentUser(ctx)
	require.NoError(t, err)
	require.Nil(t, user)

	require.Equal(t, []auth.EventType{auth.EventSignedOut}, events.types())
	require.Equal(t, result.User.ID, events.events[0].UserID)
}

func TestGatewayRefreshUsesCachedToken(t *testing.T) {
	fx := newGatewayFixture(t, auth.Options{})
	ctx := context.Background()

	signedUp, err := fx.gateway.SignUp(ctx, "dan@example.com", "s3cret!", "")
	require.NoError(t, err)

	events := &recorder{}
	fx.gateway.OnAuthStateChange(events.record)

	refreshed, err := fx.gateway.RefreshSession(ctx, "")
	require.NoError(t, err)
	require.NotEqual(t, signedUp.Session.RefreshToken, refreshed.Session.RefreshToken)

	session, err := fx.gateway.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, refreshed.Session.AccessToken, session.AccessToken)
	require.Equal(t, []auth.EventType{auth.EventTokenRefreshed}, events.types())

	require.NoError(t, fx.gateway.SignOut(ctx))
	_, err = fx.gateway.RefreshSession(ctx, "")
	require.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestGatewayUsesContextToken(t *testing.T) {
	server := identitytest.NewServer()
	t.Cleanup(server.Close)
	client, err := identity.New(identity.Config{BaseURL: server.URL}, zerolog.Nop())
	require.NoError(t, err)

	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	gateway := auth.NewGateway(client, repository.NewProfileRepository(db), auth.Options{}, zerolog.Nop())
	ctx := context.Background()

	result, err := gateway.SignUp(ctx, "erin@example.com", "s3cret!", "")
	require.NoError(t, err)

	user, err := gateway.GetCurrentUser(ctx)
	require.NoError(t, err)
	require.Nil(t, user)

	requestCtx := auth.ContextWithAccessToken(ctx, result.Session.AccessToken)
	user, err = gateway.GetCurrentUser(requestCtx)
	require.NoError(t, err)
	require.Equal(t, "erin@example.com", user.Email)

	events := &recorder{}
	gateway.OnAuthStateChange(events.record)
	require.NoError(t, gateway.SignOut(auth.ContextWithUserID(requestCtx, result.User.ID)))
	require.Equal(t, result.User.ID, events.events[0].UserID)
	require.Equal(t, 1, server.Calls("logout"))
}

func TestGatewayUpdateProfile(t *testing.T) {
	fx := newGatewayFixture(t, auth.Options{ProvisionProfiles: true})
	ctx := context.Background()

	result, err := fx.gateway.SignUp(ctx, "fay@example.com", "s3cret!", "Fay")
	require.NoError(t, err)

	events := &recorder{}
	fx.gateway.OnAuthStateChange(events.record)

	name := "Fay Instructor"
	role := models.RoleInstructor
	avatar := "https://cdn.example.com/fay.png"
	profile, err := fx.gateway.UpdateProfile(ctx, result.User.ID, auth.ProfileUpdate{FullName: &name, Role: &role, AvatarURL: &avatar})
	require.NoError(t, err)
	require.Equal(t, "Fay Instructor", *profile.FullName)
	require.True(t, profile.IsInstructor())
	require.Equal(t, avatar, *profile.AvatarURL)
	require.Equal(t, []auth.EventType{auth.EventUserUpdated}, events.types())

	empty := ""
	profile, err = fx.gateway.UpdateProfile(ctx, result.User.ID, auth.ProfileUpdate{AvatarURL: &empty})
	require.NoError(t, err)
	require.Nil(t, profile.AvatarURL)

	admin := "admin"
	_, err = fx.gateway.UpdateProfile(ctx, result.User.ID, auth.ProfileUpdate{Role: &admin})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = fx.gateway.UpdateProfile(ctx, uuid.NewString(), auth.ProfileUpdate{FullName: &name})
	require.True(t, apperr.IsNotFound(err))
}

func TestOnAuthStateChangeOrderingAndUnsubscribe(t *testing.T) {
	fx := newGatewayFixture(t, auth.Options{})
	ctx := context.Background()

	var order []string
	first := fx.gateway.OnAuthStateChange(func(context.Context, auth.Event) { order = append(order, "first") })
	fx.gateway.OnAuthStateChange(func(context.Context, auth.Event) { panic("listener bug") })
	fx.gateway.OnAuthStateChange(func(context.Context, auth.Event) { order = append(order, "third") })

	_, err := fx.gateway.SignUp(ctx, "gus@example.com", "s3cret!", "")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "third"}, order)

	first()
	first()
	require.NoError(t, fx.gateway.SignOut(ctx))
	require.Equal(t, []string{"first", "third", "third"}, order)
}

func TestRedisTokenStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := auth.NewRedisTokenStore(client, "learner")
	require.NoError(t, err)
	require.Equal(t, "auth:session:learner", store.Key())

	ctx := context.Background()
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	session := identity.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         identity.User{ID: "user-1", Email: "hal@example.com"},
	}
	require.NoError(t, store.Save(ctx, session))
	require.True(t, mr.Exists(store.Key()))
	require.Greater(t, mr.TTL(store.Key()), 50*time.Minute)

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "access", loaded.AccessToken)
	require.Equal(t, "hal@example.com", loaded.User.Email)

	require.NoError(t, store.Clear(ctx))
	require.False(t, mr.Exists(store.Key()))

	_, err = auth.NewRedisTokenStore(nil, "learner")
	require.Error(t, err)
}

func TestRelayDeliversEventsToOtherNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	publisher := newGatewayFixture(t, auth.Options{Relay: auth.NewRelay(client, nil, "learnhub", zerolog.Nop())})
	listener := newGatewayFixture(t, auth.Options{Relay: auth.NewRelay(client, nil, "learnhub", zerolog.Nop())})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	received := &recorder{}
	listener.gateway.OnAuthStateChange(received.record)
	listener.gateway.Start(ctx)

	local := &recorder{}
	publisher.gateway.OnAuthStateChange(local.record)
	publisher.gateway.Start(ctx)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("learnhub:auth")["learnhub:auth"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	result, err := publisher.gateway.SignUp(context.Background(), "ivy@example.com", "s3cret!", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(received.types()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	received.mu.Lock()
	event := received.events[0]
	received.mu.Unlock()
	require.Equal(t, auth.EventSignedIn, event.Type)
	require.Equal(t, result.User.ID, event.UserID)
	require.True(t, event.Remote)
	require.Nil(t, event.Session)

	require.Equal(t, []auth.EventType{auth.EventSignedIn}, local.types())
	require.Nil(t, auth.NewRelay(nil, nil, "learnhub", zerolog.Nop()))
}
