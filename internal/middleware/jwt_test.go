package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/auth"
	"github.com/noah-isme/learnhub-api/internal/middleware"
)

const testSecret = "middleware-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newJWTApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/me", middleware.JWTProtected(testSecret), func(c *fiber.Ctx) error {
		token, _ := auth.AccessTokenFromContext(c.UserContext())
		userID, _ := auth.UserIDFromContext(c.UserContext())
		return c.JSON(fiber.Map{
			"locals_user": middleware.UserID(c),
			"role":        middleware.UserRole(c),
			"ctx_user":    userID,
			"ctx_token":   token != "",
			"correlation": middleware.CorrelationIDFromContext(c.UserContext()),
		})
	})
	return app
}

func TestJWTProtectedAcceptsValidToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":  "6f1c2a7e-0000-4000-8000-000000000001",
		"role": "authenticated",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(middleware.HeaderCorrelationID, "corr-1")

	resp, err := newJWTApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "corr-1", resp.Header.Get(middleware.HeaderCorrelationID))

	var payload map[string]interface{}
	decodeBody(t, resp, &payload)
	require.Equal(t, "6f1c2a7e-0000-4000-8000-000000000001", payload["locals_user"])
	require.Equal(t, "6f1c2a7e-0000-4000-8000-000000000001", payload["ctx_user"])
	require.Equal(t, "authenticated", payload["role"])
	require.Equal(t, true, payload["ctx_token"])
	require.Equal(t, "corr-1", payload["correlation"])
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	expired := signToken(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix()}, testSecret)
	foreign := signToken(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()}, "other-secret")
	noExpiry := signToken(t, jwt.MapClaims{"sub": "u1"}, testSecret)
	noSubject := signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, testSecret)

	cases := map[string]string{
		"missing":    "",
		"malformed":  "Token abc",
		"expired":    "Bearer " + expired,
		"foreign":    "Bearer " + foreign,
		"no expiry":  "Bearer " + noExpiry,
		"no subject": "Bearer " + noSubject,
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := newJWTApp().Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
