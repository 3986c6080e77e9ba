package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/internal/utils"
)

// CourseHandler exposes the catalog and course authoring endpoints.
type CourseHandler struct {
	service   service.CourseService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewCourseHandler creates a course handler.
func NewCourseHandler(service service.CourseService, validate *validator.Validate, logger zerolog.Logger) *CourseHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &CourseHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register binds course routes. The guards run in front of every write route.
func (h *CourseHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/", h.list)
	router.Get("/slug/:slug", h.getBySlug)
	router.Get("/:id", h.getByID)
	router.Post("/", chain(guards, h.create)...)
	router.Patch("/:id", chain(guards, h.update)...)
	router.Delete("/:id", chain(guards, h.delete)...)
	router.Post("/:id/image", chain(guards, h.uploadImage)...)
}

// RegisterCategories binds the category listing.
func (h *CourseHandler) RegisterCategories(router fiber.Router) {
	router.Get("/", h.listCategories)
}

func (h *CourseHandler) list(c *fiber.Ctx) error {
	var (
		courses []dto.CourseResponse
		err     error
	)

	if category := strings.TrimSpace(c.Query("category")); category != "" {
		courses, err = h.service.ListByCategory(requestContext(c), category)
	} else {
		courses, err = h.service.ListPublished(requestContext(c))
	}
	if err != nil {
		return respondError(c, h.logger, err, "failed to list courses")
	}

	return utils.OK(c, courses, "courses retrieved", fiber.Map{"count": len(courses)})
}

func (h *CourseHandler) getByID(c *fiber.Ctx) error {
	course, err := h.service.GetByID(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load course")
	}
	return utils.SendSuccess(c, "course retrieved", course)
}

func (h *CourseHandler) getBySlug(c *fiber.Ctx) error {
	course, err := h.service.GetBySlug(requestContext(c), c.Params("slug"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load course")
	}
	return utils.SendSuccess(c, "course retrieved", course)
}

func (h *CourseHandler) create(c *fiber.Ctx) error {
	instructorID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.CourseCreateRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return nil
	}

	course, err := h.service.Create(requestContext(c), instructorID, req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create course")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "course created", course)
}

func (h *CourseHandler) update(c *fiber.Ctx) error {
	instructorID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.CourseUpdateRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return nil
	}

	course, err := h.service.Update(requestContext(c), instructorID, c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update course")
	}
	return utils.SendSuccess(c, "course updated", course)
}

func (h *CourseHandler) delete(c *fiber.Ctx) error {
	instructorID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	if err := h.service.Delete(requestContext(c), instructorID, c.Params("id")); err != nil {
		return respondError(c, h.logger, err, "failed to delete course")
	}
	return utils.SendSuccess(c, "course deleted", nil)
}

func (h *CourseHandler) uploadImage(c *fiber.Ctx) error {
	instructorID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	file, err := c.FormFile("image")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "image file is required")
	}

	image, err := h.service.UploadImage(requestContext(c), instructorID, c.Params("id"), file)
	if err != nil {
		return respondError(c, h.logger, err, "failed to upload course image")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "course image uploaded", image)
}

func (h *CourseHandler) listCategories(c *fiber.Ctx) error {
	categories, err := h.service.ListCategories(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list categories")
	}
	return utils.OK(c, categories, "categories retrieved", fiber.Map{"count": len(categories)})
}
