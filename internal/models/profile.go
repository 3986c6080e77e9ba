package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// RoleStudent is assigned to every new account.
	RoleStudent = "student"
	// RoleInstructor can author courses and read learner progress.
	RoleInstructor = "instructor"
)

// Profile is the domain user record kept alongside the identity account.
type Profile struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	FullName  *string   `gorm:"size:255" json:"full_name"`
	AvatarURL *string   `gorm:"size:512" json:"avatar_url"`
	Role      string    `gorm:"size:32;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an identifier when the identity service did not supply one.
func (p *Profile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = RoleStudent
	}
	return nil
}

// DisplayName returns the full name, falling back to the email address.
func (p Profile) DisplayName() string {
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	return p.Email
}

// IsInstructor reports whether the profile may author courses.
func (p Profile) IsInstructor() bool {
	return p.Role == RoleInstructor
}
