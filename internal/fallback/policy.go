// Package fallback defines the substitute records served when a lookup finds nothing.
//
// The substitutes keep dashboards and detail pages populated while the backing store
// is empty or partially unavailable. Each method receives the lookup error and
// decides whether a substitute replaces it. Only the store's no-rows signal
// (apperr.IsNoRows) triggers the single-record substitutes; not-found errors from
// other sources pass through. Whether demo content stays a product feature is still
// open; Strict turns the fictitious records off.
package fallback

import (
	"time"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/models"
)

// Policy decides which failed lookups are answered with substitute records.
type Policy interface {
	// Course substitutes a course lookup that failed with cause. ok is false when
	// cause must reach the caller.
	Course(id, slug string, cause error) (course models.Course, ok bool)
	// Enrollments substitutes a failed enrollment listing.
	Enrollments(studentID string, cause error) (enrollments []models.Enrollment, ok bool)
	// Enrollment answers an enrollment check whose lookup failed with cause.
	// enrolled is the answer to report alongside the record.
	Enrollment(courseID, studentID string, cause error) (enrollment models.Enrollment, enrolled, ok bool)
	// Profile is always served: a signed-in user must never end up without a profile.
	Profile(user identity.User) models.Profile
}

// Fixed placeholder values.
const (
	PlaceholderCategoryID   = "00000000-0000-4000-8000-000000000001"
	PlaceholderInstructorID = "00000000-0000-4000-8000-000000000002"
	PlaceholderCourseID     = "00000000-0000-4000-8000-000000000003"

	PlaceholderTitle       = "Complete Web Development Bootcamp"
	PlaceholderSlug        = "complete-web-development-bootcamp"
	PlaceholderDescription = "Learn web development from scratch with HTML, CSS, JavaScript, React, Node.js and more. Build real projects and launch your career."
	PlaceholderPrice       = 89.99
	PlaceholderLevel       = models.LevelBeginner
	PlaceholderDuration    = 52
	PlaceholderImageURL    = "https://images.unsplash.com/photo-1498050108023-c5249f4df085?w=800"

	PlaceholderCategoryName = "Development"
	PlaceholderCategorySlug = "development"
	PlaceholderInstructor   = "Dr. Sarah Johnson"
	PlaceholderInstructorAt = "instructor@learnhub.dev"
)

// epoch anchors every synthetic timestamp so substitutes are deterministic.
var epoch = time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

// Demo serves deterministic demo records.
type Demo struct{}

// NewDemo returns the demo policy.
func NewDemo() Demo { return Demo{} }

// Course serves the placeholder course, carrying the requested id or slug, when
// the row does not exist.
func (Demo) Course(id, slug string, cause error) (models.Course, bool) {
	if !apperr.IsNoRows(cause) {
		return models.Course{}, false
	}

	course := placeholderCourse()
	if id != "" {
		course.ID = id
	}
	if slug != "" {
		course.Slug = slug
	}
	return course, true
}

// Enrollments serves the two sample enrollments on any failure.
func (Demo) Enrollments(studentID string, cause error) ([]models.Enrollment, bool) {
	if cause == nil {
		return nil, false
	}
	return sampleEnrollments(studentID), true
}

// Enrollment treats a missing row as a fresh enrollment.
func (Demo) Enrollment(courseID, studentID string, cause error) (models.Enrollment, bool, bool) {
	if !apperr.IsNoRows(cause) {
		return models.Enrollment{}, false, false
	}
	return freshEnrollment(courseID, studentID), true, true
}

func (Demo) Profile(user identity.User) models.Profile {
	return profileFor(user)
}

// Strict serves no fictitious records. A missing enrollment is reported as not
// enrolled and session profiles are still synthesised.
type Strict struct{}

func (Strict) Course(string, string, error) (models.Course, bool) {
	return models.Course{}, false
}

func (Strict) Enrollments(string, error) ([]models.Enrollment, bool) { return nil, false }

// Enrollment returns an untouched record: not being enrolled is a real answer.
func (Strict) Enrollment(courseID, studentID string, cause error) (models.Enrollment, bool, bool) {
	if !apperr.IsNoRows(cause) {
		return models.Enrollment{}, false, false
	}
	return models.Enrollment{CourseID: courseID, StudentID: studentID}, false, true
}

func (Strict) Profile(user identity.User) models.Profile { return profileFor(user) }

// New picks the policy for the configured mode.
func New(demoData bool) Policy {
	if demoData {
		return Demo{}
	}
	return Strict{}
}

func sampleEnrollments(studentID string) []models.Enrollment {
	student := placeholderStudent(studentID)

	design := placeholderCourse()
	design.ID = "00000000-0000-4000-8000-000000000011"
	design.Title = "UI/UX Design Masterclass"
	design.Slug = "ui-ux-design-masterclass"
	design.DurationHours = 28
	design.ImageURL = strPtr("https://images.unsplash.com/photo-1561070791-2526d30994b5?w=800")
	design.CategoryID = "00000000-0000-4000-8000-000000000012"
	design.Category = models.Category{
		ID:        design.CategoryID,
		Name:      "Design",
		Slug:      "design",
		CreatedAt: epoch,
	}

	return []models.Enrollment{
		{
			ID:         "00000000-0000-4000-8000-000000000021",
			StudentID:  student.ID,
			CourseID:   PlaceholderCourseID,
			EnrolledAt: epoch.Add(14 * 24 * time.Hour),
			Progress:   65,
			Course:     placeholderCourse(),
			Student:    student,
		},
		{
			ID:         "00000000-0000-4000-8000-000000000022",
			StudentID:  student.ID,
			CourseID:   design.ID,
			EnrolledAt: epoch.Add(7 * 24 * time.Hour),
			Progress:   30,
			Course:     design,
			Student:    student,
		},
	}
}

func freshEnrollment(courseID, studentID string) models.Enrollment {
	course := placeholderCourse()
	if courseID != "" {
		course.ID = courseID
	}
	return models.Enrollment{
		ID:         "00000000-0000-4000-8000-000000000031",
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: epoch,
		Progress:   0,
		Course:     course,
		Student:    placeholderStudent(studentID),
	}
}

func profileFor(user identity.User) models.Profile {
	name := user.DisplayName()
	if name == "" {
		name = user.Email
	}
	created := user.CreatedAt
	if created.IsZero() {
		created = epoch
	}
	return models.Profile{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  strPtr(name),
		Role:      models.RoleStudent,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func placeholderCourse() models.Course {
	return models.Course{
		ID:            PlaceholderCourseID,
		Title:         PlaceholderTitle,
		Slug:          PlaceholderSlug,
		Description:   strPtr(PlaceholderDescription),
		InstructorID:  PlaceholderInstructorID,
		CategoryID:    PlaceholderCategoryID,
		Price:         PlaceholderPrice,
		Level:         PlaceholderLevel,
		DurationHours: PlaceholderDuration,
		ImageURL:      strPtr(PlaceholderImageURL),
		IsPublished:   true,
		IsBestseller:  true,
		CreatedAt:     epoch,
		UpdatedAt:     epoch,
		Category: models.Category{
			ID:          PlaceholderCategoryID,
			Name:        PlaceholderCategoryName,
			Slug:        PlaceholderCategorySlug,
			Description: strPtr("Programming and software development"),
			CreatedAt:   epoch,
		},
		Instructor: models.Profile{
			ID:        PlaceholderInstructorID,
			Email:     PlaceholderInstructorAt,
			FullName:  strPtr(PlaceholderInstructor),
			Role:      models.RoleInstructor,
			CreatedAt: epoch,
			UpdatedAt: epoch,
		},
	}
}

func placeholderStudent(studentID string) models.Profile {
	return models.Profile{
		ID:        studentID,
		Role:      models.RoleStudent,
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
}

func strPtr(value string) *string {
	return &value
}
