package dto

import (
	"time"

	"github.com/noah-isme/learnhub-api/internal/models"
)

// CategoryResponse describes a catalog category.
type CategoryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description"`
	Icon        *string   `json:"icon"`
	Color       *string   `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategorySummary is the category embedded in course payloads.
type CategorySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// InstructorSummary is the instructor embedded in course payloads.
type InstructorSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// CourseResponse is the catalog representation of a course.
type CourseResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Slug          string                 `json:"slug"`
	Description   *string                `json:"description"`
	Price         float64                `json:"price"`
	Level         string                 `json:"level"`
	DurationHours int                    `json:"duration_hours"`
	ImageURL      *string                `json:"image_url"`
	IsPublished   bool                   `json:"is_published"`
	IsBestseller  bool                   `json:"is_bestseller"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CategoryID    string                 `json:"category_id"`
	InstructorID  string                 `json:"instructor_id"`
	Category      CategorySummary        `json:"category"`
	Instructor    InstructorSummary      `json:"instructor"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// CourseCreateRequest is the payload of the course wizard.
type CourseCreateRequest struct {
	Title         string                 `json:"title" validate:"required,min=3,max=255"`
	Slug          string                 `json:"slug" validate:"omitempty,max=255"`
	Description   *string                `json:"description" validate:"omitempty,max=10000"`
	CategoryID    string                 `json:"category_id" validate:"required"`
	Price         float64                `json:"price" validate:"gte=0"`
	Level         string                 `json:"level" validate:"required,oneof=beginner intermediate advanced all_levels"`
	DurationHours int                    `json:"duration_hours" validate:"gte=0"`
	ImageURL      *string                `json:"image_url" validate:"omitempty,url,max=512"`
	IsPublished   bool                   `json:"is_published"`
	IsBestseller  bool                   `json:"is_bestseller"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// CourseUpdateRequest carries a partial course update.
type CourseUpdateRequest struct {
	Title         *string                `json:"title" validate:"omitempty,min=3,max=255"`
	Slug          *string                `json:"slug" validate:"omitempty,min=1,max=255"`
	Description   *string                `json:"description" validate:"omitempty,max=10000"`
	CategoryID    *string                `json:"category_id" validate:"omitempty,min=1"`
	Price         *float64               `json:"price" validate:"omitempty,gte=0"`
	Level         *string                `json:"level" validate:"omitempty,oneof=beginner intermediate advanced all_levels"`
	DurationHours *int                   `json:"duration_hours" validate:"omitempty,gte=0"`
	IsPublished   *bool                  `json:"is_published"`
	IsBestseller  *bool                  `json:"is_bestseller"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// CategorySeed is one category of a seeding batch.
type CategorySeed struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Slug        string  `json:"slug" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Icon        *string `json:"icon" validate:"omitempty,max=64"`
	Color       *string `json:"color" validate:"omitempty,max=32"`
}

// SeedCategoriesRequest carries a category seeding batch.
type SeedCategoriesRequest struct {
	Items []CategorySeed `json:"items" validate:"required,min=1,max=100,dive"`
}

// CourseImageResponse describes a stored course image.
type CourseImageResponse struct {
	CourseID  string `json:"course_id"`
	URL       string `json:"url"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// NewCategoryResponse maps a category model.
func NewCategoryResponse(category models.Category) CategoryResponse {
	return CategoryResponse{
		ID:          category.ID,
		Name:        category.Name,
		Slug:        category.Slug,
		Description: category.Description,
		Icon:        category.Icon,
		Color:       category.Color,
		CreatedAt:   category.CreatedAt,
	}
}

// NewCategoryResponses maps a slice of categories.
func NewCategoryResponses(categories []models.Category) []CategoryResponse {
	responses := make([]CategoryResponse, 0, len(categories))
	for _, category := range categories {
		responses = append(responses, NewCategoryResponse(category))
	}
	return responses
}

// NewCourseResponse maps a course with its preloaded category and instructor.
func NewCourseResponse(course models.Course) CourseResponse {
	response := CourseResponse{
		ID:            course.ID,
		Title:         course.Title,
		Slug:          course.Slug,
		Description:   course.Description,
		Price:         course.Price,
		Level:         course.Level,
		DurationHours: course.DurationHours,
		ImageURL:      course.ImageURL,
		IsPublished:   course.IsPublished,
		IsBestseller:  course.IsBestseller,
		CategoryID:    course.CategoryID,
		InstructorID:  course.InstructorID,
		Category: CategorySummary{
			ID:   course.Category.ID,
			Name: course.Category.Name,
			Slug: course.Category.Slug,
		},
		Instructor: InstructorSummary{
			ID:        course.Instructor.ID,
			Name:      course.Instructor.DisplayName(),
			AvatarURL: course.Instructor.AvatarURL,
		},
		CreatedAt: course.CreatedAt,
		UpdatedAt: course.UpdatedAt,
	}
	if len(course.Metadata) > 0 {
		response.Metadata = map[string]interface{}(course.Metadata)
	}
	return response
}

// NewCourseResponses maps a slice of courses.
func NewCourseResponses(courses []models.Course) []CourseResponse {
	responses := make([]CourseResponse, 0, len(courses))
	for _, course := range courses {
		responses = append(responses, NewCourseResponse(course))
	}
	return responses
}
