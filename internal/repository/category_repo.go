package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/models"
)

// CategoryRepository reads and seeds catalog categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
	GetBySlug(ctx context.Context, slug string) (models.Category, error)
	UpsertBatch(ctx context.Context, items []models.Category) (int64, error)
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository constructs a category repository.
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) List(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, apperr.FromStore(err)
	}

	return categories, nil
}

func (r *categoryRepository) GetBySlug(ctx context.Context, slug string) (models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&category).Error; err != nil {
		return models.Category{}, apperr.FromStore(err)
	}

	return category, nil
}

// UpsertBatch inserts categories, updating rows whose slug already exists.
func (r *categoryRepository) UpsertBatch(ctx context.Context, items []models.Category) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "icon", "color"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, apperr.FromStore(result.Error)
}
