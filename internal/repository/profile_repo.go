package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/models"
)

// ProfileRepository provides access to profile rows.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, id string, fields map[string]interface{}) (models.Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository constructs a profile repository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return models.Profile{}, apperr.FromStore(err)
	}

	return profile, nil
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	return apperr.FromStore(r.db.WithContext(ctx).Create(profile).Error)
}

func (r *profileRepository) Update(ctx context.Context, id string, fields map[string]interface{}) (models.Profile, error) {
	if len(fields) > 0 {
		result := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			return models.Profile{}, apperr.FromStore(result.Error)
		}
		if result.RowsAffected == 0 {
			return models.Profile{}, apperr.NotFound("profile not found")
		}
	}

	return r.GetByID(ctx, id)
}
