package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/handler"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/service"
)

const dashboardSchemaURL = "https://schemas.learnhub.dev/learner_dashboard.json"

const dashboardSchema = `{
  "type": "object",
  "required": ["success", "data"],
  "properties": {
    "success": {"const": true},
    "data": {
      "type": "object",
      "required": ["summary", "enrollments"],
      "properties": {
        "summary": {
          "type": "object",
          "required": ["total_courses", "completed", "in_progress", "not_started", "average_progress", "total_hours", "completion_rate"]
        },
        "enrollments": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "student_id", "course_id", "progress", "completed_at", "status", "course"],
            "properties": {
              "progress": {"type": "integer", "minimum": 0, "maximum": 100},
              "completed_at": {"type": ["string", "null"]},
              "status": {"enum": ["not_started", "in_progress", "completed"]}
            }
          }
        }
      }
    }
  }
}`

type stubEnrollmentService struct {
	service.EnrollmentService

	dashboard     dto.LearnerDashboardResponse
	lastStudent   string
	lastCourse    string
	lastProgress  int
	progressCalls int
	query         dto.StudentProgressQuery
}

func (s *stubEnrollmentService) Dashboard(_ context.Context, studentID string) (dto.LearnerDashboardResponse, error) {
	s.lastStudent = studentID
	return s.dashboard, nil
}

func (s *stubEnrollmentService) Check(_ context.Context, courseID, studentID string) (dto.EnrollmentCheckResponse, error) {
	s.lastCourse = courseID
	s.lastStudent = studentID
	return dto.EnrollmentCheckResponse{Enrolled: false, Enrollment: dto.EnrollmentResponse{CourseID: courseID, StudentID: studentID}}, nil
}

func (s *stubEnrollmentService) UpdateProgress(_ context.Context, studentID, enrollmentID string, progress int) (dto.EnrollmentResponse, error) {
	s.progressCalls++
	s.lastStudent = studentID
	s.lastProgress = progress
	return dto.EnrollmentResponse{ID: enrollmentID, StudentID: studentID, Progress: progress}, nil
}

func (s *stubEnrollmentService) StudentProgress(_ context.Context, _ string, query dto.StudentProgressQuery) (dto.StudentProgressResponse, error) {
	s.query = query
	return dto.StudentProgressResponse{
		Items:      []dto.StudentProgressRow{{EnrollmentID: "e1", StudentName: "Sam Student", Progress: 40}},
		Pagination: dto.PaginationMeta{Page: 2, PageSize: 5, TotalItems: 6, TotalPages: 2},
	}, nil
}

func asUser(userID, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, userID)
		c.Locals(middleware.LocalUserRole, role)
		return c.Next()
	}
}

func TestEnrollmentHandlerDashboardMatchesContract(t *testing.T) {
	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource(dashboardSchemaURL, strings.NewReader(dashboardSchema)))
	schema, err := compiler.Compile(dashboardSchemaURL)
	require.NoError(t, err)

	svc := &stubEnrollmentService{dashboard: dto.LearnerDashboardResponse{
		Summary: dto.LearnerSummary{TotalCourses: 2, InProgress: 2, AverageProgress: 47.5, TotalHours: 90},
		Enrollments: []dto.EnrollmentResponse{
			{ID: "e1", StudentID: "s1", CourseID: "c1", Progress: 65, Status: models.EnrollmentStatusInProgress},
			{ID: "e2", StudentID: "s1", CourseID: "c2", Progress: 30, Status: models.EnrollmentStatusInProgress},
		},
	}}

	app := fiber.New()
	handler.NewEnrollmentHandler(svc, nil, zerolog.Nop()).Register(app.Group("/api/v1/enrollments", asUser("s1", models.RoleStudent)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/dashboard", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "s1", svc.lastStudent)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestEnrollmentHandlerRequiresUser(t *testing.T) {
	svc := &stubEnrollmentService{}
	app := fiber.New()
	handler.NewEnrollmentHandler(svc, nil, zerolog.Nop()).Register(app.Group("/api/v1/enrollments"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/dashboard", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, svc.lastStudent)
}

func TestEnrollmentHandlerCheck(t *testing.T) {
	svc := &stubEnrollmentService{}
	app := fiber.New()
	handler.NewEnrollmentHandler(svc, nil, zerolog.Nop()).Register(app.Group("/api/v1/enrollments", asUser("s1", models.RoleStudent)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/check", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/check?course_id=c9", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data dto.EnrollmentCheckResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	require.False(t, payload.Data.Enrolled)
	require.Equal(t, "c9", payload.Data.Enrollment.CourseID)
	require.Equal(t, "s1", payload.Data.Enrollment.StudentID)
}

func TestEnrollmentHandlerUpdateProgress(t *testing.T) {
	svc := &stubEnrollmentService{}
	app := fiber.New()
	handler.NewEnrollmentHandler(svc, nil, zerolog.Nop()).Register(app.Group("/api/v1/enrollments", asUser("s1", models.RoleStudent)))

	missing := httptest.NewRequest(http.MethodPatch, "/api/v1/enrollments/e1/progress", strings.NewReader(`{}`))
	missing.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(missing, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Zero(t, svc.progressCalls)

	zero := httptest.NewRequest(http.MethodPatch, "/api/v1/enrollments/e1/progress", strings.NewReader(`{"progress":0}`))
	zero.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(zero, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, svc.progressCalls)
	require.Zero(t, svc.lastProgress)

	full := httptest.NewRequest(http.MethodPatch, "/api/v1/enrollments/e1/progress", strings.NewReader(`{"progress":100}`))
	full.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(full, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 100, svc.lastProgress)
}

func TestInstructorHandlerStudentsPaginates(t *testing.T) {
	svc := &stubEnrollmentService{}
	app := fiber.New()
	handler.NewInstructorHandler(&stubCourseService{}, svc, zerolog.Nop()).
		Register(app.Group("/api/v1/instructor", asUser("i1", models.RoleInstructor)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instructor/students?search=sam&status=in_progress&sort=-progress&page=2&page_size=5", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, dto.StudentProgressQuery{Search: "sam", Status: "in_progress", Sort: "-progress", Page: 2, PageSize: 5}, svc.query)

	var payload struct {
		Data []dto.StudentProgressRow `json:"data"`
		Meta dto.PaginationMeta       `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	require.Len(t, payload.Data, 1)
	require.Equal(t, int64(6), payload.Meta.TotalItems)
	require.Equal(t, 2, payload.Meta.TotalPages)
}
