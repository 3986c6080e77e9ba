package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/utils"
)

// requestContext is the user context of the request with the correlation id attached.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func currentUserID(c *fiber.Ctx) (string, error) {
	userID := strings.TrimSpace(middleware.UserID(c))
	if userID == "" {
		return "", errors.New("missing user context")
	}
	return userID, nil
}

// bindAndValidate decodes the JSON body into target and runs struct validation.
// A failure has already been written to the response when the returned error is
// not nil.
func bindAndValidate(c *fiber.Ctx, validate *validator.Validate, target interface{}) error {
	if err := c.BodyParser(target); err != nil {
		_ = utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
		return err
	}
	if err := validate.Struct(target); err != nil {
		_ = utils.Fail(c, fiber.StatusBadRequest, err.Error(), utils.ErrorDetails{Kind: string(apperr.KindValidation)})
		return err
	}
	return nil
}

// respondError logs server-side failures and renders err with the status of its kind.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, msg string) error {
	log := middleware.RequestLogger(logger, c)
	status := utils.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
	} else {
		log.Debug().Err(err).Int("status", status).Msg(msg)
	}
	return utils.SendAppError(c, err)
}

// chain returns pre followed by handlers without touching pre's backing array.
func chain(pre []fiber.Handler, handlers ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(pre)+len(handlers))
	out = append(out, pre...)
	return append(out, handlers...)
}
