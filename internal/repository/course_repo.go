package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/models"
)

// CourseFilter narrows catalog listings.
type CourseFilter struct {
	CategorySlug  string
	PublishedOnly bool
}

// CourseRepository defines persistence operations for courses.
type CourseRepository interface {
	List(ctx context.Context, filter CourseFilter) ([]models.Course, error)
	GetByID(ctx context.Context, id string) (models.Course, error)
	GetBySlug(ctx context.Context, slug string) (models.Course, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates a GORM-backed course repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Course{}).
		Preload("Category").
		Preload("Instructor")
}

func (r *courseRepository) List(ctx context.Context, filter CourseFilter) ([]models.Course, error) {
	query := r.baseQuery(ctx)

	if filter.PublishedOnly {
		query = query.Where("courses.is_published = ?", true)
	}

	if filter.CategorySlug != "" {
		categoryIDs := r.db.WithContext(ctx).Model(&models.Category{}).Select("id").Where("slug = ?", filter.CategorySlug)
		query = query.Where("courses.category_id IN (?)", categoryIDs)
	}

	var courses []models.Course
	if err := query.Order("courses.created_at DESC").Find(&courses).Error; err != nil {
		return nil, apperr.FromStore(err)
	}

	return courses, nil
}

func (r *courseRepository) GetByID(ctx context.Context, id string) (models.Course, error) {
	var course models.Course
	if err := r.baseQuery(ctx).Where("courses.id = ?", id).First(&course).Error; err != nil {
		return models.Course{}, apperr.FromStore(err)
	}

	return course, nil
}

func (r *courseRepository) GetBySlug(ctx context.Context, slug string) (models.Course, error) {
	var course models.Course
	if err := r.baseQuery(ctx).Where("courses.slug = ?", slug).First(&course).Error; err != nil {
		return models.Course{}, apperr.FromStore(err)
	}

	return course, nil
}

func (r *courseRepository) ListByInstructor(ctx context.Context, instructorID string) ([]models.Course, error) {
	var courses []models.Course
	if err := r.baseQuery(ctx).
		Where("courses.instructor_id = ?", instructorID).
		Order("courses.created_at DESC").
		Find(&courses).Error; err != nil {
		return nil, apperr.FromStore(err)
	}

	return courses, nil
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	return apperr.FromStore(r.db.WithContext(ctx).Omit(clause.Associations).Create(course).Error)
}

func (r *courseRepository) Update(ctx context.Context, course *models.Course) error {
	return apperr.FromStore(r.db.WithContext(ctx).Omit(clause.Associations).Save(course).Error)
}

func (r *courseRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Course{})
	if result.Error != nil {
		return apperr.FromStore(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("course not found")
	}
	return nil
}
