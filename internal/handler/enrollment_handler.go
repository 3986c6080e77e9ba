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

// EnrollmentHandler exposes the learner's enrollment endpoints.
type EnrollmentHandler struct {
	service   service.EnrollmentService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEnrollmentHandler creates an enrollment handler.
func NewEnrollmentHandler(service service.EnrollmentService, validate *validator.Validate, logger zerolog.Logger) *EnrollmentHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &EnrollmentHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "enrollment_handler").Logger(),
	}
}

// Register attaches enrollment routes.
func (h *EnrollmentHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.enroll)
	router.Get("/dashboard", h.dashboard)
	router.Get("/check", h.check)
	router.Patch("/:id/progress", h.updateProgress)
}

func (h *EnrollmentHandler) list(c *fiber.Ctx) error {
	studentID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	enrollments, err := h.service.ListForStudent(requestContext(c), studentID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list enrollments")
	}
	return utils.OK(c, enrollments, "enrollments retrieved", fiber.Map{"count": len(enrollments)})
}

func (h *EnrollmentHandler) enroll(c *fiber.Ctx) error {
	studentID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.EnrollRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return nil
	}

	enrollment, err := h.service.Enroll(requestContext(c), studentID, req.CourseID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to enroll")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "enrolled", enrollment)
}

func (h *EnrollmentHandler) dashboard(c *fiber.Ctx) error {
	studentID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	dashboard, err := h.service.Dashboard(requestContext(c), studentID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load dashboard")
	}
	return utils.SendSuccess(c, "dashboard retrieved", dashboard)
}

func (h *EnrollmentHandler) check(c *fiber.Ctx) error {
	studentID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	courseID := strings.TrimSpace(c.Query("course_id"))
	if courseID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "course_id required")
	}

	result, err := h.service.Check(requestContext(c), courseID, studentID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to check enrollment")
	}
	return utils.SendSuccess(c, "enrollment status", result)
}

func (h *EnrollmentHandler) updateProgress(c *fiber.Ctx) error {
	studentID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.ProgressUpdateRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return nil
	}

	enrollment, err := h.service.UpdateProgress(requestContext(c), studentID, c.Params("id"), *req.Progress)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update progress")
	}
	return utils.SendSuccess(c, "progress updated", enrollment)
}
