package dto

import (
	"time"

	"github.com/noah-isme/learnhub-api/internal/models"
)

// EnrollmentResponse is an enrollment together with its course.
type EnrollmentResponse struct {
	ID          string         `json:"id"`
	StudentID   string         `json:"student_id"`
	CourseID    string         `json:"course_id"`
	EnrolledAt  time.Time      `json:"enrolled_at"`
	Progress    int            `json:"progress"`
	CompletedAt *time.Time     `json:"completed_at"`
	Status      string         `json:"status"`
	Course      CourseResponse `json:"course"`
}

// EnrollRequest enrolls the caller in a course.
type EnrollRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// ProgressUpdateRequest sets the progress percentage of an enrollment.
type ProgressUpdateRequest struct {
	Progress *int `json:"progress" validate:"required"`
}

// EnrollmentCheckResponse answers whether the caller is enrolled in a course.
type EnrollmentCheckResponse struct {
	Enrolled   bool               `json:"enrolled"`
	Enrollment EnrollmentResponse `json:"enrollment"`
}

// LearnerDashboardResponse summarises a student's learning.
type LearnerDashboardResponse struct {
	Summary     LearnerSummary       `json:"summary"`
	Enrollments []EnrollmentResponse `json:"enrollments"`
}

// LearnerSummary captures aggregated statistics for the learner dashboard.
type LearnerSummary struct {
	TotalCourses    int     `json:"total_courses"`
	Completed       int     `json:"completed"`
	InProgress      int     `json:"in_progress"`
	NotStarted      int     `json:"not_started"`
	AverageProgress float64 `json:"average_progress"`
	TotalHours      int     `json:"total_hours"`
	CompletionRate  float64 `json:"completion_rate"`
}

// StudentProgressQuery filters the instructor progress table.
type StudentProgressQuery struct {
	Search   string `query:"search" validate:"omitempty,max=255"`
	Status   string `query:"status" validate:"omitempty,oneof=completed in_progress not_started"`
	Sort     string `query:"sort" validate:"omitempty,oneof=progress -progress enrolled_at -enrolled_at name -name"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// StudentProgressRow is one learner/course pair in the instructor view.
type StudentProgressRow struct {
	EnrollmentID string     `json:"enrollment_id"`
	StudentID    string     `json:"student_id"`
	StudentName  string     `json:"student_name"`
	StudentEmail string     `json:"student_email"`
	CourseID     string     `json:"course_id"`
	CourseTitle  string     `json:"course_title"`
	Progress     int        `json:"progress"`
	Status       string     `json:"status"`
	EnrolledAt   time.Time  `json:"enrolled_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// PaginationMeta describes a page of results.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// StudentProgressResponse is a page of the instructor progress table.
type StudentProgressResponse struct {
	Items      []StudentProgressRow `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewEnrollmentResponse maps an enrollment with its preloaded course.
func NewEnrollmentResponse(enrollment models.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:          enrollment.ID,
		StudentID:   enrollment.StudentID,
		CourseID:    enrollment.CourseID,
		EnrolledAt:  enrollment.EnrolledAt,
		Progress:    enrollment.Progress,
		CompletedAt: enrollment.CompletedAt,
		Status:      enrollment.Status(),
		Course:      NewCourseResponse(enrollment.Course),
	}
}

// NewEnrollmentResponses maps a slice of enrollments.
func NewEnrollmentResponses(enrollments []models.Enrollment) []EnrollmentResponse {
	responses := make([]EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		responses = append(responses, NewEnrollmentResponse(enrollment))
	}
	return responses
}

// NewStudentProgressRow maps an enrollment with preloaded student and course.
func NewStudentProgressRow(enrollment models.Enrollment) StudentProgressRow {
	return StudentProgressRow{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		StudentName:  enrollment.Student.DisplayName(),
		StudentEmail: enrollment.Student.Email,
		CourseID:     enrollment.CourseID,
		CourseTitle:  enrollment.Course.Title,
		Progress:     enrollment.Progress,
		Status:       enrollment.Status(),
		EnrolledAt:   enrollment.EnrolledAt,
		CompletedAt:  enrollment.CompletedAt,
	}
}
