package handler

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/auth"
	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/fallback"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/observability"
	"github.com/noah-isme/learnhub-api/internal/utils"
)

const eventStreamBuffer = 16

// AuthGateway is the slice of the auth gateway served over HTTP.
type AuthGateway interface {
	SignUp(ctx context.Context, email, password, fullName string) (auth.Result, error)
	SignIn(ctx context.Context, email, password string) (auth.Result, error)
	SignOut(ctx context.Context) error
	RefreshSession(ctx context.Context, refreshToken string) (auth.Result, error)
	GetCurrentUser(ctx context.Context) (*identity.User, error)
	GetUserProfile(ctx context.Context, userID string) (models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update auth.ProfileUpdate) (models.Profile, error)
	OnAuthStateChange(callback auth.Callback) func()
}

// AuthHandler exposes account, profile and auth event endpoints.
type AuthHandler struct {
	gateway   AuthGateway
	policy    fallback.Policy
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(gateway AuthGateway, policy fallback.Policy, validate *validator.Validate, logger zerolog.Logger) *AuthHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if policy == nil {
		policy = fallback.New(true)
	}

	return &AuthHandler{
		gateway:   gateway,
		policy:    policy,
		validator: validate,
		logger:    logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register binds the public credential endpoints. Extra handlers such as rate
// limiters run before each of them.
func (h *AuthHandler) Register(router fiber.Router, limiters ...fiber.Handler) {
	router.Post("/signup", chain(limiters, h.signUp)...)
	router.Post("/signin", chain(limiters, h.signIn)...)
	router.Post("/refresh", chain(limiters, h.refresh)...)
}

// RegisterSession binds endpoints that require an authenticated caller; guards
// such as the JWT check run first.
func (h *AuthHandler) RegisterSession(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/signout", chain(guards, h.signOut)...)
	router.Get("/me", chain(guards, h.me)...)
	router.Get("/events", chain(guards, requireUpgrade, websocket.New(h.streamEvents))...)
}

// RegisterProfile binds the caller's profile endpoints.
func (h *AuthHandler) RegisterProfile(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/", chain(guards, h.getProfile)...)
	router.Patch("/", chain(guards, h.updateProfile)...)
}

func (h *AuthHandler) signUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return nil
	}

	result, err := h.gateway.SignUp(requestContext(c), req.Email, req.Password, req.FullName)
	if err != nil {
		return respondError(c, h.logger, err, "sign up failed")
	}

	message := "account created"
	if result.Session == nil {
		message = "confirmation required"
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, message, dto.NewAuthResponse(*result.User, result.Session))
}

func (h *AuthHandler) signIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return nil
	}

	result, err := h.gateway.SignIn(requestContext(c), req.Email, req.Password)
	if err != nil {
		return respondError(c, h.logger, err, "sign in failed")
	}

	return utils.SendSuccess(c, "signed in", dto.NewAuthResponse(*result.User, result.Session))
}

func (h *AuthHandler) refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return nil
	}

	result, err := h.gateway.RefreshSession(requestContext(c), req.RefreshToken)
	if err != nil {
		return respondError(c, h.logger, err, "session refresh failed")
	}

	return utils.SendSuccess(c, "session refreshed", dto.NewAuthResponse(*result.User, result.Session))
}

func (h *AuthHandler) signOut(c *fiber.Ctx) error {
	if err := h.gateway.SignOut(requestContext(c)); err != nil {
		return respondError(c, h.logger, err, "remote sign out failed")
	}
	return utils.SendSuccess(c, "signed out", nil)
}

func (h *AuthHandler) me(c *fiber.Ctx) error {
	ctx := requestContext(c)
	user, err := h.gateway.GetCurrentUser(ctx)
	if err != nil {
		return respondError(c, h.logger, err, "failed to resolve current user")
	}
	if user == nil {
		return utils.SendError(c, fiber.StatusUnauthorized, "no active session")
	}

	profile, err := h.gateway.GetUserProfile(ctx, user.ID)
	if err != nil {
		if !apperr.IsNotFound(err) {
			log := middleware.RequestLogger(h.logger, c)
			log.Warn().Err(err).Str("user_id", user.ID).Msg("profile lookup failed")
		}
		observability.FallbackServed().WithLabelValues("auth.me.profile").Inc()
		profile = h.policy.Profile(*user)
	}

	return utils.SendSuccess(c, "current user", dto.MeResponse{
		User:    dto.NewUserResponse(*user),
		Profile: dto.NewProfileResponse(profile),
	})
}

func (h *AuthHandler) getProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	profile, err := h.gateway.GetUserProfile(requestContext(c), userID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load profile")
	}
	return utils.SendSuccess(c, "profile retrieved", dto.NewProfileResponse(profile))
}

func (h *AuthHandler) updateProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.ProfileUpdateRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return nil
	}

	profile, err := h.gateway.UpdateProfile(requestContext(c), userID, auth.ProfileUpdate{
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to update profile")
	}
	return utils.SendSuccess(c, "profile updated", dto.NewProfileResponse(profile))
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// streamEvents pushes the caller's auth events until the client goes away. The
// first frame is a READY marker sent once the subscription is live.
func (h *AuthHandler) streamEvents(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.LocalUserID).(string)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	events := make(chan auth.Event, eventStreamBuffer)
	unsubscribe := h.gateway.OnAuthStateChange(func(_ context.Context, event auth.Event) {
		if event.UserID != userID {
			return
		}
		select {
		case events <- event:
		default:
			h.logger.Warn().Str("user_id", userID).Str("event", string(event.Type)).Msg("auth event stream lagging, dropping event")
		}
	})
	defer unsubscribe()

	observability.AuthStreamsActive().Inc()
	defer observability.AuthStreamsActive().Dec()
	h.logger.Info().Str("user_id", userID).Msg("auth event stream connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(dto.AuthEventMessage{Type: "READY", UserID: userID}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			h.logger.Info().Str("user_id", userID).Msg("auth event stream disconnected")
			return
		case event := <-events:
			message := dto.AuthEventMessage{
				Type:       string(event.Type),
				UserID:     event.UserID,
				OccurredAt: event.OccurredAt,
				Remote:     event.Remote,
			}
			if err := conn.WriteJSON(message); err != nil {
				h.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to write auth event")
				return
			}
		}
	}
}
