package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/identity/identitytest"
)

func newClient(t *testing.T) (*identity.Client, *identitytest.Server) {
	t.Helper()
	server := identitytest.NewServer()
	t.Cleanup(server.Close)

	client, err := identity.New(identity.Config{BaseURL: server.URL, APIKey: "anon", Timeout: 2 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	return client, server
}

func TestClientSignUpSignInAndGetUser(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	signedUp, err := client.SignUp(ctx, "alice@example.com", "s3cret!", map[string]interface{}{"full_name": "Alice"})
	require.NoError(t, err)
	require.NotNil(t, signedUp.Session)
	require.Equal(t, "alice@example.com", signedUp.User.Email)
	require.Equal(t, "Alice", signedUp.User.DisplayName())
	require.False(t, signedUp.Session.Expiry().IsZero())

	signedIn, err := client.SignInWithPassword(ctx, "alice@example.com", "s3cret!")
	require.NoError(t, err)
	require.NotEmpty(t, signedIn.Session.AccessToken)
	require.Equal(t, signedUp.User.ID, signedIn.User.ID)

	user, err := client.GetUser(ctx, signedIn.Session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)

	refreshed, err := client.RefreshSession(ctx, signedIn.Session.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, signedIn.Session.RefreshToken, refreshed.Session.RefreshToken)

	require.NoError(t, client.SignOut(ctx, signedIn.Session.AccessToken))
	_, err = client.GetUser(ctx, signedIn.Session.AccessToken)
	require.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestClientMapsRejectionsToKinds(t *testing.T) {
	client, server := newClient(t)
	ctx := context.Background()

	_, err := client.SignInWithPassword(ctx, "nobody@example.com", "wrong-pass")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Contains(t, err.Error(), "Invalid login credentials")

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "invalid_credentials", appErr.Code)

	_, err = client.SignUp(ctx, "weak@example.com", "123", nil)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = client.RefreshSession(ctx, "")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	server.SetFailLogout(true)
	err = client.SignOut(ctx, "anything")
	require.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
}

func TestClientSignUpPendingConfirmationHasNoSession(t *testing.T) {
	client, server := newClient(t)
	server.RequireConfirmation = true

	resp, err := client.SignUp(context.Background(), "pending@example.com", "longenough", nil)
	require.NoError(t, err)
	require.Nil(t, resp.Session)
	require.Equal(t, "pending@example.com", resp.User.Email)
	require.NotEmpty(t, resp.User.ID)
}

func TestClientUnreachableServiceIsNetworkError(t *testing.T) {
	client, err := identity.New(identity.Config{BaseURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.GetUser(context.Background(), "token")
	require.Equal(t, apperr.KindNetwork, apperr.KindOf(err))

	_, err = identity.New(identity.Config{}, zerolog.Nop())
	require.Error(t, err)
}
