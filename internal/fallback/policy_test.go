package fallback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/identity"
	"github.com/noah-isme/learnhub-api/internal/models"
)

var errNoRows = apperr.NotFound("no rows returned")

func TestDemoCourseKeepsRequestedIdentity(t *testing.T) {
	course, ok := NewDemo().Course("course-42", "", errNoRows)
	require.True(t, ok)
	require.Equal(t, "course-42", course.ID)
	require.Equal(t, PlaceholderSlug, course.Slug)
	require.True(t, course.IsPublished)
	require.Equal(t, PlaceholderCategoryName, course.Category.Name)
	require.Equal(t, PlaceholderInstructor, course.Instructor.DisplayName())

	bySlug, ok := NewDemo().Course("", "intro-to-go", errNoRows)
	require.True(t, ok)
	require.Equal(t, PlaceholderCourseID, bySlug.ID)
	require.Equal(t, "intro-to-go", bySlug.Slug)
}

func TestDemoCourseOnlyReplacesMissingRows(t *testing.T) {
	demo := NewDemo()

	_, ok := demo.Course("course-42", "", apperr.Wrap(apperr.KindNetwork, errors.New("connection refused"), ""))
	require.False(t, ok)

	_, ok = demo.Course("course-42", "", &apperr.Error{Kind: apperr.KindNotFound, Message: "user not found"})
	require.False(t, ok)

	_, _, ok = demo.Enrollment("course-1", "student-1", &apperr.Error{Kind: apperr.KindNotFound})
	require.False(t, ok)
}

func TestDemoEnrollmentsAreDeterministic(t *testing.T) {
	cause := apperr.Wrap(apperr.KindNetwork, errors.New("connection refused"), "")
	first, ok := NewDemo().Enrollments("student-1", cause)
	require.True(t, ok)
	second, _ := NewDemo().Enrollments("student-1", errNoRows)

	require.Len(t, first, 2)
	require.Equal(t, first, second)
	require.Equal(t, 65, first[0].Progress)
	require.Equal(t, 30, first[1].Progress)
	for _, enrollment := range first {
		require.Equal(t, "student-1", enrollment.StudentID)
		require.NotEmpty(t, enrollment.Course.Title)
		require.NotEmpty(t, enrollment.Course.Category.Name)
		require.NotEmpty(t, enrollment.Course.Instructor.DisplayName())
		require.Nil(t, enrollment.CompletedAt)
	}

	_, ok = NewDemo().Enrollments("student-1", nil)
	require.False(t, ok)
}

func TestDemoEnrollmentIsFreshAndEnrolled(t *testing.T) {
	enrollment, enrolled, ok := NewDemo().Enrollment("course-7", "student-9", errNoRows)

	require.True(t, ok)
	require.True(t, enrolled)
	require.Equal(t, "course-7", enrollment.CourseID)
	require.Equal(t, "student-9", enrollment.StudentID)
	require.Zero(t, enrollment.Progress)
	require.Nil(t, enrollment.CompletedAt)
	require.Equal(t, models.EnrollmentStatusNotStarted, enrollment.Status())
}

func TestProfileSynthesis(t *testing.T) {
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	user := identity.User{ID: "user-1", Email: "alice@example.com", CreatedAt: created}

	for name, policy := range map[string]Policy{"demo": New(true), "strict": New(false)} {
		t.Run(name, func(t *testing.T) {
			profile := policy.Profile(user)
			require.Equal(t, "user-1", profile.ID)
			require.Equal(t, "alice@example.com", profile.Email)
			require.NotNil(t, profile.FullName)
			require.Equal(t, "alice@example.com", *profile.FullName)
			require.Equal(t, models.RoleStudent, profile.Role)
			require.Equal(t, created, profile.CreatedAt)
		})
	}

	named := user
	named.UserMetadata = map[string]interface{}{"full_name": "Alice Doe"}
	require.Equal(t, "Alice Doe", *New(true).Profile(named).FullName)
}

func TestNewSelectsPolicy(t *testing.T) {
	require.IsType(t, Demo{}, New(true))
	require.IsType(t, Strict{}, New(false))
}

func TestStrictServesNoFictitiousRecords(t *testing.T) {
	strict := New(false)

	_, ok := strict.Course("c1", "s1", errNoRows)
	require.False(t, ok)
	_, ok = strict.Enrollments("student-1", errNoRows)
	require.False(t, ok)

	enrollment, enrolled, ok := strict.Enrollment("course-1", "student-1", errNoRows)
	require.True(t, ok)
	require.False(t, enrolled)
	require.Equal(t, "course-1", enrollment.CourseID)
	require.Equal(t, "student-1", enrollment.StudentID)
	require.Zero(t, enrollment.Progress)
	require.Empty(t, enrollment.Course.Title)

	_, _, ok = strict.Enrollment("course-1", "student-1", apperr.Wrap(apperr.KindNetwork, errors.New("timeout"), ""))
	require.False(t, ok)
}
