package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/auth"
	"github.com/noah-isme/learnhub-api/internal/database"
	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/fallback"
	"github.com/noah-isme/learnhub-api/internal/handler"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/identity/identitytest"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
)

type authFixture struct {
	baseURL  string
	profiles repository.ProfileRepository
}

type unreachableProfiles struct {
	repository.ProfileRepository
}

func (unreachableProfiles) GetByID(context.Context, string) (models.Profile, error) {
	return models.Profile{}, apperr.Wrap(apperr.KindNetwork, errors.New("dial tcp: connection refused"), "")
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	return newAuthFixtureWith(t, nil)
}

func newAuthFixtureWith(t *testing.T, wrap func(repository.ProfileRepository) repository.ProfileRepository) authFixture {
	t.Helper()

	server := identitytest.NewServer()
	t.Cleanup(server.Close)

	client, err := identity.New(identity.Config{BaseURL: server.URL, Timeout: 2 * time.Second}, zerolog.Nop())
	require.NoError(t, err)

	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	profiles := repository.NewProfileRepository(db)
	served := profiles
	if wrap != nil {
		served = wrap(profiles)
	}

	gateway := auth.NewGateway(client, served, auth.Options{}, zerolog.Nop())
	authHandler := handler.NewAuthHandler(gateway, fallback.NewDemo(), nil, zerolog.Nop())
	jwt := middleware.JWTProtected(identitytest.DefaultSecret)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(middleware.CorrelationID())
	authGroup := app.Group("/api/v1/auth")
	authHandler.Register(authGroup)
	authHandler.RegisterSession(authGroup, jwt)
	authHandler.RegisterProfile(app.Group("/api/v1/profile"), jwt)

	baseURL, shutdown := startFiberServer(t, app)
	t.Cleanup(shutdown)

	return authFixture{baseURL: baseURL, profiles: profiles}
}

func (f authFixture) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.baseURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func TestAuthHandlerSignUpAndMeFallsBackToSyntheticProfile(t *testing.T) {
	fixture := newAuthFixture(t)

	resp, payload := fixture.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{
		Email:    "alice@example.com",
		Password: "s3cret!",
		FullName: "Alice",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var signedUp dto.AuthResponse
	require.NoError(t, json.Unmarshal(payload["data"], &signedUp))
	require.NotNil(t, signedUp.Session)
	require.Equal(t, "alice@example.com", signedUp.User.Email)

	resp, payload = fixture.do(t, http.MethodGet, "/api/v1/auth/me", signedUp.Session.AccessToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var me dto.MeResponse
	require.NoError(t, json.Unmarshal(payload["data"], &me))
	require.Equal(t, signedUp.User.ID, me.Profile.ID)
	require.Equal(t, "Alice", *me.Profile.FullName)
	require.Equal(t, models.RoleStudent, me.Profile.Role)

	resp, _ = fixture.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthHandlerMeServesSyntheticProfileWhenStoreIsDown(t *testing.T) {
	fixture := newAuthFixtureWith(t, func(repository.ProfileRepository) repository.ProfileRepository {
		return unreachableProfiles{}
	})

	resp, payload := fixture.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{Email: "erin@example.com", Password: "s3cret!"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var signedUp dto.AuthResponse
	require.NoError(t, json.Unmarshal(payload["data"], &signedUp))

	resp, payload = fixture.do(t, http.MethodGet, "/api/v1/auth/me", signedUp.Session.AccessToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var me dto.MeResponse
	require.NoError(t, json.Unmarshal(payload["data"], &me))
	require.Equal(t, signedUp.User.ID, me.Profile.ID)
	require.Equal(t, "erin@example.com", *me.Profile.FullName)
	require.Equal(t, models.RoleStudent, me.Profile.Role)
}

func TestAuthHandlerRejectsInvalidCredentials(t *testing.T) {
	fixture := newAuthFixture(t)

	resp, _ := fixture.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{"email": "not-an-email", "password": "x"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = fixture.do(t, http.MethodPost, "/api/v1/auth/signin", "", dto.SignInRequest{Email: "ghost@example.com", Password: "wrong-password"})
	require.GreaterOrEqual(t, resp.StatusCode, 400)
	require.Less(t, resp.StatusCode, 500)
}

func TestAuthHandlerProfileUpdateIgnoresRole(t *testing.T) {
	fixture := newAuthFixture(t)

	resp, payload := fixture.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{Email: "bob@example.com", Password: "s3cret!"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var signedUp dto.AuthResponse
	require.NoError(t, json.Unmarshal(payload["data"], &signedUp))
	token := signedUp.Session.AccessToken

	resp, _ = fixture.do(t, http.MethodGet, "/api/v1/profile", token, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	require.NoError(t, fixture.profiles.Create(t.Context(), &models.Profile{ID: signedUp.User.ID, Email: "bob@example.com", Role: models.RoleStudent}))

	resp, payload = fixture.do(t, http.MethodPatch, "/api/v1/profile", token, map[string]string{
		"full_name": "Bob Builder",
		"role":      models.RoleInstructor,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var profile dto.ProfileResponse
	require.NoError(t, json.Unmarshal(payload["data"], &profile))
	require.Equal(t, "Bob Builder", *profile.FullName)
	require.Equal(t, models.RoleStudent, profile.Role)
}

func TestAuthHandlerStreamsOwnEvents(t *testing.T) {
	fixture := newAuthFixture(t)

	resp, payload := fixture.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{Email: "carol@example.com", Password: "s3cret!"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var carol dto.AuthResponse
	require.NoError(t, json.Unmarshal(payload["data"], &carol))

	resp, payload = fixture.do(t, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{Email: "dave@example.com", Password: "s3cret!"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var dave dto.AuthResponse
	require.NoError(t, json.Unmarshal(payload["data"], &dave))

	url := "ws" + strings.TrimPrefix(fixture.baseURL, "http") + "/api/v1/auth/events?access_token=" + carol.Session.AccessToken
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, wsResp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if wsResp != nil {
		_ = wsResp.Body.Close()
	}
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var ready dto.AuthEventMessage
	require.NoError(t, conn.ReadJSON(&ready))
	require.Equal(t, "READY", ready.Type)
	require.Equal(t, carol.User.ID, ready.UserID)

	resp, _ = fixture.do(t, http.MethodPost, "/api/v1/auth/signout", dave.Session.AccessToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = fixture.do(t, http.MethodPost, "/api/v1/auth/signout", carol.Session.AccessToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var event dto.AuthEventMessage
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, string(auth.EventSignedOut), event.Type)
	require.Equal(t, carol.User.ID, event.UserID)
	require.False(t, event.Remote)
}

func TestAuthEventsRequireUpgradeAndToken(t *testing.T) {
	fixture := newAuthFixture(t)

	resp, err := http.Get(fixture.baseURL + "/api/v1/auth/events")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(fixture.baseURL, "http") + "/api/v1/auth/events"
	_, wsResp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, wsResp)
	_ = wsResp.Body.Close()
	require.Equal(t, fiber.StatusUnauthorized, wsResp.StatusCode)
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}
