package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/apperr"
)

// Config points the client at a GoTrue-compatible identity endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the hosted identity service over REST.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
	now    func() time.Time
}

type errorBody struct {
	Code             int    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// New constructs an identity client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("identity base url must be provided")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetHeader("apikey", cfg.APIKey)
	}

	return &Client{
		http:   httpClient,
		logger: logger.With().Str("component", "identity_client").Logger(),
		now:    time.Now,
	}, nil
}

// SignUp registers a new account with email and password.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (AuthResponse, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	var session Session
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&session).
		SetError(&errorBody{}).
		Post("/signup")
	if err := c.check(resp, err, "signup"); err != nil {
		return AuthResponse{}, err
	}

	if session.AccessToken == "" {
		// Confirmation pending: the payload is the bare user.
		var user User
		if err := decodeUser(resp, &user); err != nil {
			return AuthResponse{}, err
		}
		return AuthResponse{User: user}, nil
	}

	c.stampExpiry(&session)
	return AuthResponse{User: session.User, Session: &session}, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (AuthResponse, error) {
	return c.token(ctx, "password", map[string]interface{}{
		"email":    email,
		"password": password,
	})
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (AuthResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return AuthResponse{}, apperr.New(apperr.KindValidation, "missing_refresh_token", "refresh token is required")
	}
	return c.token(ctx, "refresh_token", map[string]interface{}{
		"refresh_token": refreshToken,
	})
}

// SignOut revokes the session identified by the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetError(&errorBody{}).
		Post("/logout")
	return c.check(resp, err, "logout")
}

// GetUser resolves the account owning the access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	var user User
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		SetError(&errorBody{}).
		Get("/user")
	if err := c.check(resp, err, "user"); err != nil {
		return User{}, err
	}

	return user, nil
}

func (c *Client) token(ctx context.Context, grantType string, body map[string]interface{}) (AuthResponse, error) {
	var session Session
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", grantType).
		SetBody(body).
		SetResult(&session).
		SetError(&errorBody{}).
		Post("/token")
	if err := c.check(resp, err, "token"); err != nil {
		return AuthResponse{}, err
	}

	if session.AccessToken == "" {
		return AuthResponse{}, apperr.New(apperr.KindUnknown, "empty_session", "identity service returned no session")
	}

	c.stampExpiry(&session)
	return AuthResponse{User: session.User, Session: &session}, nil
}

func (c *Client) stampExpiry(session *Session) {
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
}

func (c *Client) check(resp *resty.Response, err error, operation string) error {
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", operation).Msg("identity request failed")
		if errors.Is(err, context.Canceled) {
			return apperr.Wrap(apperr.KindNetwork, err, "identity request cancelled")
		}
		return apperr.Wrap(apperr.KindNetwork, err, "identity service unreachable")
	}

	if !resp.IsError() {
		return nil
	}

	body, _ := resp.Error().(*errorBody)
	code, message := describe(body)
	if message == "" {
		message = fmt.Sprintf("identity %s failed with status %d", operation, resp.StatusCode())
	}

	kind := kindForStatus(resp.StatusCode())
	c.logger.Debug().Int("status", resp.StatusCode()).Str("operation", operation).Str("code", code).Msg("identity request rejected")

	return &apperr.Error{Kind: kind, Code: code, Message: message}
}

func describe(body *errorBody) (string, string) {
	if body == nil {
		return "", ""
	}

	code := body.ErrorCode
	if code == "" {
		code = body.Error
	}

	message := body.Msg
	for _, candidate := range []string{body.Message, body.ErrorDescription, body.Error} {
		if message == "" {
			message = candidate
		}
	}

	return code, message
}

func kindForStatus(status int) apperr.Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return apperr.KindValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperr.KindPermission
	case status == http.StatusNotFound:
		return apperr.KindNotFound
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return apperr.KindNetwork
	default:
		return apperr.KindUnknown
	}
}

func decodeUser(resp *resty.Response, user *User) error {
	if err := json.Unmarshal(resp.Body(), user); err != nil {
		return apperr.Wrap(apperr.KindUnknown, err, "invalid identity response")
	}
	return nil
}
