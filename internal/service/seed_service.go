package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = apperr.New(apperr.KindPermission, "seed_disabled", "seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = apperr.New(apperr.KindPermission, "seed_unauthorized", "invalid seed token")
)

// SeedService loads catalog reference data such as categories.
type SeedService interface {
	SeedCategories(ctx context.Context, token string, items []dto.CategorySeed) (int64, error)
}

type seedService struct {
	categories repository.CategoryRepository
	enabled    bool
	token      string
	validator  *validator.Validate
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(categories repository.CategoryRepository, enabled bool, token string, validate *validator.Validate, logger zerolog.Logger) SeedService {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &seedService{
		categories: categories,
		enabled:    enabled,
		token:      token,
		validator:  validate,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedCategories(ctx context.Context, token string, items []dto.CategorySeed) (int64, error) {
	return apperr.GuardValue(func() (int64, error) {
		if !s.enabled {
			return 0, ErrSeedDisabled
		}
		if !s.validToken(token) {
			return 0, ErrSeedUnauthorized
		}
		if err := s.validator.Var(items, "required,min=1,max=100,dive"); err != nil {
			return 0, apperr.Wrap(apperr.KindValidation, err, "invalid category batch")
		}

		categories := make([]models.Category, 0, len(items))
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			category := s.normalize(item)
			if category.Slug == "" {
				return 0, apperr.New(apperr.KindValidation, "", "category "+item.Name+" has no usable slug")
			}
			if _, dup := seen[category.Slug]; dup {
				continue
			}
			seen[category.Slug] = struct{}{}
			categories = append(categories, category)
		}

		affected, err := s.categories.UpsertBatch(ctx, categories)
		if err != nil {
			return 0, err
		}
		s.logger.Info().Int64("affected", affected).Msg("categories seeded")
		return affected, nil
	})
}

func (s *seedService) normalize(item dto.CategorySeed) models.Category {
	name := strings.TrimSpace(s.sanitizer.Sanitize(item.Name))
	slug := slugify(item.Slug)
	if slug == "" {
		slug = slugify(name)
	}

	return models.Category{
		Name:        name,
		Slug:        slug,
		Description: s.clean(item.Description),
		Icon:        trimmed(item.Icon),
		Color:       trimmed(item.Color),
	}
}

func (s *seedService) clean(value *string) *string {
	value = trimmed(value)
	if value == nil {
		return nil
	}
	cleaned := s.sanitizer.Sanitize(*value)
	return &cleaned
}

func (s *seedService) validToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}
