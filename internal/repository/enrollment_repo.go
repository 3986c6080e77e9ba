package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/models"
)

// StudentProgressFilter describes the instructor progress table query.
type StudentProgressFilter struct {
	Search   string
	Status   string
	Sort     string
	Page     int
	PageSize int
}

// EnrollmentRepository defines data operations for enrollments.
type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	GetByID(ctx context.Context, id string) (models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (models.Enrollment, error)
	UpdateProgress(ctx context.Context, id string, progress int, now time.Time) (models.Enrollment, error)
	ListForInstructor(ctx context.Context, instructorID string, filter StudentProgressFilter) ([]models.Enrollment, int64, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates the repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Preload("Course").
		Preload("Course.Category").
		Preload("Course.Instructor")
}

func (r *enrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return apperr.FromStore(r.db.WithContext(ctx).Omit(clause.Associations).Create(enrollment).Error)
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id string) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.baseQuery(ctx).Where("enrollments.id = ?", id).First(&enrollment).Error; err != nil {
		return models.Enrollment{}, apperr.FromStore(err)
	}

	return enrollment, nil
}

func (r *enrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.baseQuery(ctx).
		Where("enrollments.student_id = ?", studentID).
		Order("enrollments.enrolled_at DESC").
		Find(&enrollments).Error; err != nil {
		return nil, apperr.FromStore(err)
	}

	return enrollments, nil
}

func (r *enrollmentRepository) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.baseQuery(ctx).
		Where("enrollments.course_id = ?", courseID).
		Where("enrollments.student_id = ?", studentID).
		Order("enrollments.enrolled_at DESC").
		First(&enrollment).Error; err != nil {
		return models.Enrollment{}, apperr.FromStore(err)
	}

	return enrollment, nil
}

// UpdateProgress writes progress and, once progress reaches completion, stamps
// completed_at in the same statement without overwriting an earlier stamp.
func (r *enrollmentRepository) UpdateProgress(ctx context.Context, id string, progress int, now time.Time) (models.Enrollment, error) {
	updates := map[string]interface{}{"progress": progress}
	if progress >= models.ProgressComplete {
		updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", now)
	}

	result := r.db.WithContext(ctx).Model(&models.Enrollment{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return models.Enrollment{}, apperr.FromStore(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.Enrollment{}, apperr.NotFound("enrollment not found")
	}

	return r.GetByID(ctx, id)
}

func (r *enrollmentRepository) ListForInstructor(ctx context.Context, instructorID string, filter StudentProgressFilter) ([]models.Enrollment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Joins("JOIN courses ON courses.id = enrollments.course_id").
		Joins("JOIN profiles ON profiles.id = enrollments.student_id").
		Where("courses.instructor_id = ?", instructorID)

	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"LOWER(profiles.full_name) LIKE ? OR LOWER(profiles.email) LIKE ? OR LOWER(courses.title) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	switch strings.ToLower(strings.TrimSpace(filter.Status)) {
	case models.EnrollmentStatusCompleted:
		query = query.Where("(enrollments.completed_at IS NOT NULL OR enrollments.progress >= ?)", models.ProgressComplete)
	case models.EnrollmentStatusInProgress:
		query = query.Where("enrollments.completed_at IS NULL AND enrollments.progress > 0 AND enrollments.progress < ?", models.ProgressComplete)
	case models.EnrollmentStatusNotStarted:
		query = query.Where("enrollments.completed_at IS NULL AND enrollments.progress = 0")
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperr.FromStore(err)
	}

	query = query.
		Preload("Course").
		Preload("Course.Category").
		Preload("Student").
		Order(normalizeProgressSort(filter.Sort))

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var enrollments []models.Enrollment
	if err := query.Find(&enrollments).Error; err != nil {
		return nil, 0, apperr.FromStore(err)
	}

	return enrollments, total, nil
}

func normalizeProgressSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "progress", "progress:asc", "progress.asc":
		return "enrollments.progress ASC"
	case "-progress", "progress:desc", "progress.desc":
		return "enrollments.progress DESC"
	case "enrolled_at", "enrolled_at:asc", "enrolled_at.asc":
		return "enrollments.enrolled_at ASC"
	case "name", "name:asc", "name.asc":
		return "profiles.full_name ASC"
	case "-name", "name:desc", "name.desc":
		return "profiles.full_name DESC"
	default:
		return "enrollments.enrolled_at DESC"
	}
}
