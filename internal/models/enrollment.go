package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProgressComplete is the progress value that marks an enrollment as finished.
const ProgressComplete = 100

// Enrollment links a student to a course and tracks progress.
type Enrollment struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID   string     `gorm:"type:uuid;index;not null" json:"student_id"`
	CourseID    string     `gorm:"type:uuid;index;not null" json:"course_id"`
	EnrolledAt  time.Time  `gorm:"not null;autoCreateTime" json:"enrolled_at"`
	Progress    int        `gorm:"not null;default:0" json:"progress"`
	CompletedAt *time.Time `json:"completed_at"`
	Course      Course     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"course"`
	Student     Profile    `gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

func (e *Enrollment) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// IsCompleted reports whether the enrollment reached full progress.
func (e Enrollment) IsCompleted() bool {
	return e.CompletedAt != nil || e.Progress >= ProgressComplete
}

// Status buckets the enrollment for dashboards and progress tables.
func (e Enrollment) Status() string {
	switch {
	case e.IsCompleted():
		return EnrollmentStatusCompleted
	case e.Progress > 0:
		return EnrollmentStatusInProgress
	default:
		return EnrollmentStatusNotStarted
	}
}

const (
	EnrollmentStatusCompleted  = "completed"
	EnrollmentStatusInProgress = "in_progress"
	EnrollmentStatusNotStarted = "not_started"
)

// All returns every model that is part of the schema, in migration order.
func All() []interface{} {
	return []interface{}{&Profile{}, &Category{}, &Course{}, &Enrollment{}}
}
