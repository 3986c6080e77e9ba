package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/service"
	"github.com/noah-isme/learnhub-api/internal/utils"
)

// InstructorHandler serves the instructor dashboard: own courses and the progress
// of enrolled students.
type InstructorHandler struct {
	courses     service.CourseService
	enrollments service.EnrollmentService
	logger      zerolog.Logger
}

// NewInstructorHandler creates an instructor handler.
func NewInstructorHandler(courses service.CourseService, enrollments service.EnrollmentService, logger zerolog.Logger) *InstructorHandler {
	return &InstructorHandler{
		courses:     courses,
		enrollments: enrollments,
		logger:      logger.With().Str("component", "instructor_handler").Logger(),
	}
}

// Register attaches instructor routes. Role checks belong to the router group.
func (h *InstructorHandler) Register(router fiber.Router) {
	router.Get("/courses", h.listCourses)
	router.Get("/students", h.students)
}

func (h *InstructorHandler) listCourses(c *fiber.Ctx) error {
	instructorID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	courses, err := h.courses.ListByInstructor(requestContext(c), instructorID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list instructor courses")
	}
	return utils.OK(c, courses, "instructor courses retrieved", fiber.Map{"count": len(courses)})
}

func (h *InstructorHandler) students(c *fiber.Ctx) error {
	instructorID, err := currentUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var query dto.StudentProgressQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	result, err := h.enrollments.StudentProgress(requestContext(c), instructorID, query)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load student progress")
	}
	return utils.OK(c, result.Items, "student progress retrieved", result.Pagination)
}
