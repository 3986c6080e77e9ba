// Package identitytest runs an in-memory stand-in for the hosted identity service.
package identitytest

import (
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/learnhub-api/internal/identity"
)

// DefaultSecret signs the fake access tokens.
const DefaultSecret = "identitytest-secret"

type account struct {
	user     identity.User
	password string
}

// Server emulates the signup, token, logout and user endpoints.
type Server struct {
	URL    string
	Secret string

	mu       sync.Mutex
	accounts map[string]*account
	tokens   map[string]string
	refresh  map[string]string
	calls    map[string]int

	// FailLogout makes /logout answer 503.
	FailLogout bool
	// RequireConfirmation makes /signup return the bare user without a session.
	RequireConfirmation bool

	srv *httptest.Server
}

// NewServer starts the fake service. Call Close when done.
func NewServer() *Server {
	s := &Server{
		Secret:   DefaultSecret,
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		refresh:  make(map[string]string),
		calls:    make(map[string]int),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/signup", s.signup)
	app.Post("/token", s.token)
	app.Post("/logout", s.logout)
	app.Get("/user", s.user)

	s.srv = httptest.NewServer(adaptor.FiberApp(app))
	s.URL = s.srv.URL
	return s
}

// Close stops the server.
func (s *Server) Close() {
	s.srv.Close()
}

// Calls returns how many times an endpoint was hit.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// SetFailLogout toggles logout failures.
func (s *Server) SetFailLogout(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailLogout = fail
}

// IssueToken signs an access token for an arbitrary subject, for middleware tests.
func (s *Server) IssueToken(userID, role string, ttl time.Duration) string {
	token, _ := s.sign(userID, role, ttl)
	return token
}

func (s *Server) signup(c *fiber.Ctx) error {
	var payload struct {
		Email    string                 `json:"email"`
		Password string                 `json:"password"`
		Data     map[string]interface{} `json:"data"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return fail(c, fiber.StatusBadRequest, "bad_json", "invalid body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["signup"]++

	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" || len(payload.Password) < 6 {
		return fail(c, fiber.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters")
	}
	if _, exists := s.accounts[email]; exists {
		return fail(c, fiber.StatusUnprocessableEntity, "user_already_exists", "User already registered")
	}

	now := time.Now().UTC()
	acct := &account{
		user: identity.User{
			ID:           uuid.NewString(),
			Email:        email,
			Role:         "authenticated",
			UserMetadata: payload.Data,
			CreatedAt:    now,
		},
		password: payload.Password,
	}
	s.accounts[email] = acct

	if s.RequireConfirmation {
		return c.JSON(acct.user)
	}
	return s.issue(c, acct)
}

func (s *Server) token(c *fiber.Ctx) error {
	var payload struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return fail(c, fiber.StatusBadRequest, "bad_json", "invalid body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["token"]++

	switch c.Query("grant_type") {
	case "password":
		acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(payload.Email))]
		if !ok || acct.password != payload.Password {
			return fail(c, fiber.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		}
		now := time.Now().UTC()
		acct.user.LastSignInAt = &now
		return s.issue(c, acct)
	case "refresh_token":
		email, ok := s.refresh[payload.RefreshToken]
		if !ok {
			return fail(c, fiber.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token")
		}
		delete(s.refresh, payload.RefreshToken)
		return s.issue(c, s.accounts[email])
	default:
		return fail(c, fiber.StatusBadRequest, "unsupported_grant_type", "unsupported grant type")
	}
}

func (s *Server) logout(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["logout"]++

	if s.FailLogout {
		return fail(c, fiber.StatusServiceUnavailable, "unavailable", "identity service unavailable")
	}

	token := bearer(c)
	if _, ok := s.tokens[token]; !ok {
		return fail(c, fiber.StatusUnauthorized, "bad_jwt", "invalid JWT")
	}
	delete(s.tokens, token)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) user(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["user"]++

	email, ok := s.tokens[bearer(c)]
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "bad_jwt", "invalid JWT")
	}
	return c.JSON(s.accounts[email].user)
}

func (s *Server) issue(c *fiber.Ctx, acct *account) error {
	const ttl = time.Hour
	access, err := s.sign(acct.user.ID, "authenticated", ttl)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "sign_failed", err.Error())
	}
	refresh := uuid.NewString()
	s.tokens[access] = acct.user.Email
	s.refresh[refresh] = acct.user.Email

	return c.JSON(identity.Session{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int(ttl.Seconds()),
		ExpiresAt:    time.Now().Add(ttl).Unix(),
		RefreshToken: refresh,
		User:         acct.user,
	})
}

func (s *Server) sign(userID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
		"jti":  uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Secret))
}

func bearer(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"code":       status,
		"error_code": code,
		"msg":        message,
	})
}
