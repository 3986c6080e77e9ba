package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/fallback"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/observability"
	"github.com/noah-isme/learnhub-api/internal/repository"
)

const defaultProgressPageSize = 20

var (
	// ErrNegativeProgress rejects progress values below zero.
	ErrNegativeProgress = apperr.New(apperr.KindValidation, "invalid_progress", "progress cannot be negative")
	// ErrNotEnrollmentOwner is returned when a student touches another student's enrollment.
	ErrNotEnrollmentOwner = apperr.New(apperr.KindPermission, "not_enrollment_owner", "enrollment belongs to another student")
)

// EnrollmentService is the enrollment and progress access layer.
type EnrollmentService interface {
	Enroll(ctx context.Context, studentID, courseID string) (dto.EnrollmentResponse, error)
	ListForStudent(ctx context.Context, studentID string) ([]dto.EnrollmentResponse, error)
	UpdateProgress(ctx context.Context, studentID, enrollmentID string, progress int) (dto.EnrollmentResponse, error)
	Check(ctx context.Context, courseID, studentID string) (dto.EnrollmentCheckResponse, error)
	Dashboard(ctx context.Context, studentID string) (dto.LearnerDashboardResponse, error)
	StudentProgress(ctx context.Context, instructorID string, query dto.StudentProgressQuery) (dto.StudentProgressResponse, error)
}

type enrollmentService struct {
	enrollments repository.EnrollmentRepository
	policy      fallback.Policy
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(enrollments repository.EnrollmentRepository, policy fallback.Policy, validate *validator.Validate, logger zerolog.Logger) EnrollmentService {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &enrollmentService{
		enrollments: enrollments,
		policy:      policy,
		validator:   validate,
		logger:      logger.With().Str("component", "enrollment_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/learnhub-api/internal/service/enrollment"),
		now:         time.Now,
	}
}

func (s *enrollmentService) Enroll(ctx context.Context, studentID, courseID string) (dto.EnrollmentResponse, error) {
	return apperr.GuardValue(func() (dto.EnrollmentResponse, error) {
		ctx, span := s.tracer.Start(ctx, "enrollments.enroll", trace.WithAttributes(
			attribute.String("enrollment.student_id", studentID),
			attribute.String("enrollment.course_id", courseID),
		))
		defer span.End()

		studentID = strings.TrimSpace(studentID)
		courseID = strings.TrimSpace(courseID)
		if studentID == "" || courseID == "" {
			return dto.EnrollmentResponse{}, apperr.New(apperr.KindValidation, "", "student id and course id are required")
		}

		enrollment := models.Enrollment{StudentID: studentID, CourseID: courseID, Progress: 0}
		if err := s.enrollments.Create(ctx, &enrollment); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enroll failed")
			return dto.EnrollmentResponse{}, err
		}

		created, err := s.enrollments.GetByID(ctx, enrollment.ID)
		if err != nil {
			return dto.EnrollmentResponse{}, err
		}

		s.logger.Info().Str("enrollment_id", created.ID).Str("course_id", courseID).Msg("student enrolled")
		return dto.NewEnrollmentResponse(created), nil
	})
}

// ListForStudent lets the fallback policy replace a failed query so the learner
// dashboard stays populated.
func (s *enrollmentService) ListForStudent(ctx context.Context, studentID string) ([]dto.EnrollmentResponse, error) {
	return apperr.GuardValue(func() ([]dto.EnrollmentResponse, error) {
		ctx, span := s.tracer.Start(ctx, "enrollments.list_for_student", trace.WithAttributes(
			attribute.String("enrollment.student_id", studentID),
		))
		defer span.End()

		enrollments, err := s.listForStudent(ctx, studentID, span)
		if err != nil {
			return nil, err
		}
		return dto.NewEnrollmentResponses(enrollments), nil
	})
}

func (s *enrollmentService) listForStudent(ctx context.Context, studentID string, span trace.Span) ([]models.Enrollment, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, apperr.New(apperr.KindValidation, "", "student id is required")
	}

	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		if substitutes, ok := s.policy.Enrollments(studentID, err); ok {
			s.servedFallback("enrollment.list_for_student", err)
			span.SetAttributes(attribute.Bool("fallback", true))
			return substitutes, nil
		}
		span.RecordError(err)
		return nil, err
	}
	return enrollments, nil
}

// UpdateProgress stores the latest reported progress. Concurrent writers are not
// reconciled: the last write wins. Values above 100 are clamped.
func (s *enrollmentService) UpdateProgress(ctx context.Context, studentID, enrollmentID string, progress int) (dto.EnrollmentResponse, error) {
	return apperr.GuardValue(func() (dto.EnrollmentResponse, error) {
		ctx, span := s.tracer.Start(ctx, "enrollments.update_progress", trace.WithAttributes(
			attribute.String("enrollment.id", enrollmentID),
			attribute.Int("enrollment.progress", progress),
		))
		defer span.End()

		if progress < 0 {
			return dto.EnrollmentResponse{}, ErrNegativeProgress
		}
		if progress > models.ProgressComplete {
			progress = models.ProgressComplete
		}

		existing, err := s.enrollments.GetByID(ctx, enrollmentID)
		if err != nil {
			span.RecordError(err)
			return dto.EnrollmentResponse{}, err
		}
		if existing.StudentID != studentID {
			return dto.EnrollmentResponse{}, ErrNotEnrollmentOwner
		}

		updated, err := s.enrollments.UpdateProgress(ctx, enrollmentID, progress, s.now().UTC())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
			return dto.EnrollmentResponse{}, err
		}

		if updated.CompletedAt != nil && existing.CompletedAt == nil {
			s.logger.Info().Str("enrollment_id", enrollmentID).Msg("course completed")
		}
		return dto.NewEnrollmentResponse(updated), nil
	})
}

// Check reports whether the student is enrolled in the course. A missing row is
// answered by the fallback policy, which defaults to a fresh enrollment.
func (s *enrollmentService) Check(ctx context.Context, courseID, studentID string) (dto.EnrollmentCheckResponse, error) {
	return apperr.GuardValue(func() (dto.EnrollmentCheckResponse, error) {
		ctx, span := s.tracer.Start(ctx, "enrollments.check", trace.WithAttributes(
			attribute.String("enrollment.student_id", studentID),
			attribute.String("enrollment.course_id", courseID),
		))
		defer span.End()

		enrollment, err := s.enrollments.FindByCourseAndStudent(ctx, courseID, studentID)
		if err != nil {
			substitute, enrolled, ok := s.policy.Enrollment(courseID, studentID, err)
			if !ok {
				span.RecordError(err)
				return dto.EnrollmentCheckResponse{}, err
			}
			if enrolled {
				s.servedFallback("enrollment.check", err)
				span.SetAttributes(attribute.Bool("fallback", true))
			}
			return dto.EnrollmentCheckResponse{
				Enrolled:   enrolled,
				Enrollment: dto.NewEnrollmentResponse(substitute),
			}, nil
		}

		return dto.EnrollmentCheckResponse{Enrolled: true, Enrollment: dto.NewEnrollmentResponse(enrollment)}, nil
	})
}

func (s *enrollmentService) Dashboard(ctx context.Context, studentID string) (dto.LearnerDashboardResponse, error) {
	return apperr.GuardValue(func() (dto.LearnerDashboardResponse, error) {
		ctx, span := s.tracer.Start(ctx, "enrollments.dashboard", trace.WithAttributes(
			attribute.String("enrollment.student_id", studentID),
		))
		defer span.End()

		enrollments, err := s.listForStudent(ctx, studentID, span)
		if err != nil {
			return dto.LearnerDashboardResponse{}, err
		}

		return dto.LearnerDashboardResponse{
			Summary:     summarize(enrollments),
			Enrollments: dto.NewEnrollmentResponses(enrollments),
		}, nil
	})
}

func (s *enrollmentService) StudentProgress(ctx context.Context, instructorID string, query dto.StudentProgressQuery) (dto.StudentProgressResponse, error) {
	return apperr.GuardValue(func() (dto.StudentProgressResponse, error) {
		ctx, span := s.tracer.Start(ctx, "enrollments.student_progress", trace.WithAttributes(
			attribute.String("enrollment.instructor_id", instructorID),
		))
		defer span.End()

		if err := s.validator.Struct(query); err != nil {
			return dto.StudentProgressResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid progress query")
		}
		if query.Page <= 0 {
			query.Page = 1
		}
		if query.PageSize <= 0 {
			query.PageSize = defaultProgressPageSize
		}

		enrollments, total, err := s.enrollments.ListForInstructor(ctx, instructorID, repository.StudentProgressFilter{
			Search:   query.Search,
			Status:   query.Status,
			Sort:     query.Sort,
			Page:     query.Page,
			PageSize: query.PageSize,
		})
		if err != nil {
			span.RecordError(err)
			return dto.StudentProgressResponse{}, err
		}

		rows := make([]dto.StudentProgressRow, 0, len(enrollments))
		for _, enrollment := range enrollments {
			rows = append(rows, dto.NewStudentProgressRow(enrollment))
		}

		return dto.StudentProgressResponse{
			Items: rows,
			Pagination: dto.PaginationMeta{
				Page:       query.Page,
				PageSize:   query.PageSize,
				TotalItems: total,
				TotalPages: int(math.Ceil(float64(total) / float64(query.PageSize))),
			},
		}, nil
	})
}

func (s *enrollmentService) servedFallback(operation string, cause error) {
	observability.FallbackServed().WithLabelValues(operation).Inc()
	s.logger.Warn().Err(cause).Str("operation", operation).Msg("serving placeholder enrollment data")
}

func summarize(enrollments []models.Enrollment) dto.LearnerSummary {
	summary := dto.LearnerSummary{TotalCourses: len(enrollments)}
	if len(enrollments) == 0 {
		return summary
	}

	var progressTotal int
	for _, enrollment := range enrollments {
		progressTotal += enrollment.Progress
		summary.TotalHours += enrollment.Course.DurationHours
		switch enrollment.Status() {
		case models.EnrollmentStatusCompleted:
			summary.Completed++
		case models.EnrollmentStatusInProgress:
			summary.InProgress++
		default:
			summary.NotStarted++
		}
	}

	summary.AverageProgress = math.Round(float64(progressTotal)/float64(len(enrollments))*100) / 100
	summary.CompletionRate = math.Round(float64(summary.Completed)/float64(len(enrollments))*10000) / 100
	return summary
}
