package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Course levels offered by the catalog.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelAllLevels    = "all_levels"
)

// Course is a catalog entry authored by an instructor.
type Course struct {
	ID            string            `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string            `gorm:"size:255;not null" json:"title"`
	Slug          string            `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Description   *string           `gorm:"type:text" json:"description"`
	InstructorID  string            `gorm:"type:uuid;index;not null" json:"instructor_id"`
	CategoryID    string            `gorm:"type:uuid;index;not null" json:"category_id"`
	Price         float64           `gorm:"not null;default:0" json:"price"`
	Level         string            `gorm:"size:32;not null" json:"level"`
	DurationHours int               `gorm:"not null;default:0" json:"duration_hours"`
	ImageURL      *string           `gorm:"size:512" json:"image_url"`
	IsPublished   bool              `gorm:"not null;default:false;index" json:"is_published"`
	IsBestseller  bool              `gorm:"not null;default:false" json:"is_bestseller"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Category      Category          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"category"`
	Instructor    Profile           `gorm:"foreignKey:InstructorID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"instructor"`
}

func (c *Course) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
