package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/internal/utils"
)

// HeaderSeedToken authenticates seeding requests.
const HeaderSeedToken = "X-Seed-Token"

// SeedHandler exposes tooling endpoints for seeding reference data.
type SeedHandler struct {
	service   service.SeedService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSeedHandler constructs a seed handler.
func NewSeedHandler(service service.SeedService, validate *validator.Validate, logger zerolog.Logger) *SeedHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &SeedHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "seed_handler").Logger(),
	}
}

// Register wires seed routes.
func (h *SeedHandler) Register(router fiber.Router) {
	router.Post("/categories", h.categories)
}

func (h *SeedHandler) categories(c *fiber.Ctx) error {
	var payload dto.SeedCategoriesRequest
	if err := bindAndValidate(c, h.validator, &payload); err != nil {
		return nil
	}

	affected, err := h.service.SeedCategories(requestContext(c), c.Get(HeaderSeedToken), payload.Items)
	if err != nil {
		return respondError(c, h.logger, err, "seed operation failed")
	}

	return utils.SendSuccess(c, "categories seeded", fiber.Map{"affected": affected})
}
