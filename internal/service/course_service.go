package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/dto"
	"github.com/noah-isme/learnhub-api/internal/fallback"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/observability"
	"github.com/noah-isme/learnhub-api/internal/repository"
)

const (
	catalogPublishedKey      = "catalog:courses:published"
	catalogCategoryKeyPrefix = "catalog:courses:category:"
	catalogKeyPattern        = "catalog:courses:*"
)

var (
	// ErrNotCourseOwner is returned when an instructor edits someone else's course.
	ErrNotCourseOwner = apperr.New(apperr.KindPermission, "not_course_owner", "course belongs to another instructor")
	// ErrImageTooLarge indicates the image exceeded the configured limit.
	ErrImageTooLarge = apperr.New(apperr.KindValidation, "image_too_large", "image exceeds maximum allowed size")
	// ErrImageTypeNotAllowed indicates the upload is not a supported image.
	ErrImageTypeNotAllowed = apperr.New(apperr.KindValidation, "image_type_not_allowed", "only jpeg, png, webp and gif images are accepted")
	// ErrImageStorageUnavailable is returned when no storage backend is configured.
	ErrImageStorageUnavailable = apperr.New(apperr.KindNetwork, "storage_unavailable", "image storage is not configured")
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageStorage uploads course images and returns their public URL.
type ImageStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// CourseService is the catalog access layer.
type CourseService interface {
	ListPublished(ctx context.Context) ([]dto.CourseResponse, error)
	ListByCategory(ctx context.Context, categorySlug string) ([]dto.CourseResponse, error)
	GetByID(ctx context.Context, id string) (dto.CourseResponse, error)
	GetBySlug(ctx context.Context, slug string) (dto.CourseResponse, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]dto.CourseResponse, error)
	Create(ctx context.Context, instructorID string, req dto.CourseCreateRequest) (dto.CourseResponse, error)
	Update(ctx context.Context, instructorID, id string, req dto.CourseUpdateRequest) (dto.CourseResponse, error)
	Delete(ctx context.Context, instructorID, id string) error
	UploadImage(ctx context.Context, instructorID, courseID string, file *multipart.FileHeader) (dto.CourseImageResponse, error)
	ListCategories(ctx context.Context) ([]dto.CategoryResponse, error)
}

// CourseServiceConfig carries the tunables of the catalog service.
type CourseServiceConfig struct {
	CacheTTL   time.Duration
	MaxImageMB int
}

type courseService struct {
	courses    repository.CourseRepository
	categories repository.CategoryRepository
	policy     fallback.Policy
	storage    ImageStorage
	cache      *redis.Client
	cacheTTL   time.Duration
	maxImage   int64
	validator  *validator.Validate
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewCourseService constructs the catalog service. cache and storage may be nil.
func NewCourseService(courses repository.CourseRepository, categories repository.CategoryRepository, policy fallback.Policy, storage ImageStorage, cache *redis.Client, cfg CourseServiceConfig, validate *validator.Validate, logger zerolog.Logger) CourseService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.MaxImageMB <= 0 {
		cfg.MaxImageMB = 5
	}
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &courseService{
		courses:    courses,
		categories: categories,
		policy:     policy,
		storage:    storage,
		cache:      cache,
		cacheTTL:   cfg.CacheTTL,
		maxImage:   int64(cfg.MaxImageMB) * 1024 * 1024,
		validator:  validate,
		sanitizer:  bluemonday.UGCPolicy(),
		logger:     logger.With().Str("component", "course_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/learnhub-api/internal/service/course"),
	}
}

func (s *courseService) ListPublished(ctx context.Context) ([]dto.CourseResponse, error) {
	return apperr.GuardValue(func() ([]dto.CourseResponse, error) {
		ctx, span := s.tracer.Start(ctx, "courses.list_published")
		defer span.End()

		return s.listCached(ctx, catalogPublishedKey, repository.CourseFilter{PublishedOnly: true}, span)
	})
}

func (s *courseService) ListByCategory(ctx context.Context, categorySlug string) ([]dto.CourseResponse, error) {
	return apperr.GuardValue(func() ([]dto.CourseResponse, error) {
		categorySlug = strings.ToLower(strings.TrimSpace(categorySlug))
		if categorySlug == "" {
			return s.ListPublished(ctx)
		}

		ctx, span := s.tracer.Start(ctx, "courses.list_by_category", trace.WithAttributes(
			attribute.String("course.category_slug", categorySlug),
		))
		defer span.End()

		filter := repository.CourseFilter{CategorySlug: categorySlug, PublishedOnly: true}
		return s.listCached(ctx, catalogCategoryKeyPrefix+categorySlug, filter, span)
	})
}

func (s *courseService) listCached(ctx context.Context, key string, filter repository.CourseFilter, span trace.Span) ([]dto.CourseResponse, error) {
	if cached, ok := s.readCache(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	courses, err := s.courses.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	responses := dto.NewCourseResponses(courses)
	s.writeCache(ctx, key, responses)
	span.SetAttributes(attribute.Int("course.count", len(responses)))
	return responses, nil
}

func (s *courseService) GetByID(ctx context.Context, id string) (dto.CourseResponse, error) {
	return apperr.GuardValue(func() (dto.CourseResponse, error) {
		ctx, span := s.tracer.Start(ctx, "courses.get_by_id", trace.WithAttributes(attribute.String("course.id", id)))
		defer span.End()

		course, err := s.courses.GetByID(ctx, id)
		if err != nil {
			if substitute, ok := s.policy.Course(id, "", err); ok {
				s.servedFallback("course.get_by_id", err)
				span.SetAttributes(attribute.Bool("fallback", true))
				return dto.NewCourseResponse(substitute), nil
			}
			span.RecordError(err)
			return dto.CourseResponse{}, err
		}

		return dto.NewCourseResponse(course), nil
	})
}

func (s *courseService) GetBySlug(ctx context.Context, slug string) (dto.CourseResponse, error) {
	return apperr.GuardValue(func() (dto.CourseResponse, error) {
		ctx, span := s.tracer.Start(ctx, "courses.get_by_slug", trace.WithAttributes(attribute.String("course.slug", slug)))
		defer span.End()

		course, err := s.courses.GetBySlug(ctx, slug)
		if err != nil {
			if substitute, ok := s.policy.Course("", slug, err); ok {
				s.servedFallback("course.get_by_slug", err)
				span.SetAttributes(attribute.Bool("fallback", true))
				return dto.NewCourseResponse(substitute), nil
			}
			span.RecordError(err)
			return dto.CourseResponse{}, err
		}

		return dto.NewCourseResponse(course), nil
	})
}

func (s *courseService) ListByInstructor(ctx context.Context, instructorID string) ([]dto.CourseResponse, error) {
	return apperr.GuardValue(func() ([]dto.CourseResponse, error) {
		ctx, span := s.tracer.Start(ctx, "courses.list_by_instructor", trace.WithAttributes(
			attribute.String("course.instructor_id", instructorID),
		))
		defer span.End()

		courses, err := s.courses.ListByInstructor(ctx, instructorID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return dto.NewCourseResponses(courses), nil
	})
}

func (s *courseService) Create(ctx context.Context, instructorID string, req dto.CourseCreateRequest) (dto.CourseResponse, error) {
	return apperr.GuardValue(func() (dto.CourseResponse, error) {
		ctx, span := s.tracer.Start(ctx, "courses.create", trace.WithAttributes(
			attribute.String("course.instructor_id", instructorID),
		))
		defer span.End()

		if strings.TrimSpace(instructorID) == "" {
			return dto.CourseResponse{}, apperr.New(apperr.KindValidation, "", "instructor id is required")
		}
		req.Title = strings.TrimSpace(req.Title)
		if err := s.validator.Struct(req); err != nil {
			return dto.CourseResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid course payload")
		}

		slug, err := s.uniqueSlug(ctx, req.Slug, req.Title)
		if err != nil {
			return dto.CourseResponse{}, err
		}

		course := models.Course{
			Title:         req.Title,
			Slug:          slug,
			Description:   s.sanitize(req.Description),
			InstructorID:  instructorID,
			CategoryID:    req.CategoryID,
			Price:         req.Price,
			Level:         req.Level,
			DurationHours: req.DurationHours,
			ImageURL:      trimmed(req.ImageURL),
			IsPublished:   req.IsPublished,
			IsBestseller:  req.IsBestseller,
		}
		if len(req.Metadata) > 0 {
			course.Metadata = datatypes.JSONMap(req.Metadata)
		}

		if err := s.courses.Create(ctx, &course); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create failed")
			return dto.CourseResponse{}, err
		}
		s.invalidateCatalog(ctx)

		created, err := s.courses.GetByID(ctx, course.ID)
		if err != nil {
			return dto.CourseResponse{}, err
		}

		s.logger.Info().Str("course_id", created.ID).Str("instructor_id", instructorID).Msg("course created")
		return dto.NewCourseResponse(created), nil
	})
}

func (s *courseService) Update(ctx context.Context, instructorID, id string, req dto.CourseUpdateRequest) (dto.CourseResponse, error) {
	return apperr.GuardValue(func() (dto.CourseResponse, error) {
		ctx, span := s.tracer.Start(ctx, "courses.update", trace.WithAttributes(attribute.String("course.id", id)))
		defer span.End()

		if err := s.validator.Struct(req); err != nil {
			return dto.CourseResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid course payload")
		}

		course, err := s.ownedCourse(ctx, instructorID, id)
		if err != nil {
			span.RecordError(err)
			return dto.CourseResponse{}, err
		}

		if req.Title != nil {
			course.Title = strings.TrimSpace(*req.Title)
		}
		if req.Slug != nil {
			slug := slugify(*req.Slug)
			if slug != course.Slug {
				if slug, err = s.uniqueSlug(ctx, slug, course.Title); err != nil {
					return dto.CourseResponse{}, err
				}
				course.Slug = slug
			}
		}
		if req.Description != nil {
			course.Description = s.sanitize(req.Description)
		}
		if req.CategoryID != nil {
			course.CategoryID = *req.CategoryID
		}
		if req.Price != nil {
			course.Price = *req.Price
		}
		if req.Level != nil {
			course.Level = *req.Level
		}
		if req.DurationHours != nil {
			course.DurationHours = *req.DurationHours
		}
		if req.IsPublished != nil {
			course.IsPublished = *req.IsPublished
		}
		if req.IsBestseller != nil {
			course.IsBestseller = *req.IsBestseller
		}
		if req.Metadata != nil {
			course.Metadata = datatypes.JSONMap(req.Metadata)
		}

		if err := s.courses.Update(ctx, &course); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
			return dto.CourseResponse{}, err
		}
		s.invalidateCatalog(ctx)

		updated, err := s.courses.GetByID(ctx, id)
		if err != nil {
			return dto.CourseResponse{}, err
		}
		return dto.NewCourseResponse(updated), nil
	})
}

func (s *courseService) Delete(ctx context.Context, instructorID, id string) error {
	return apperr.Guard(func() error {
		ctx, span := s.tracer.Start(ctx, "courses.delete", trace.WithAttributes(attribute.String("course.id", id)))
		defer span.End()

		if _, err := s.ownedCourse(ctx, instructorID, id); err != nil {
			span.RecordError(err)
			return err
		}
		if err := s.courses.Delete(ctx, id); err != nil {
			span.RecordError(err)
			return err
		}

		s.invalidateCatalog(ctx)
		s.logger.Info().Str("course_id", id).Str("instructor_id", instructorID).Msg("course deleted")
		return nil
	})
}

func (s *courseService) UploadImage(ctx context.Context, instructorID, courseID string, file *multipart.FileHeader) (dto.CourseImageResponse, error) {
	return apperr.GuardValue(func() (dto.CourseImageResponse, error) {
		ctx, span := s.tracer.Start(ctx, "courses.upload_image", trace.WithAttributes(
			attribute.String("course.id", courseID),
			attribute.Int64("upload.max_bytes", s.maxImage),
		))
		defer span.End()

		if file == nil {
			return dto.CourseImageResponse{}, apperr.New(apperr.KindValidation, "", "image file is required")
		}
		if s.storage == nil {
			return dto.CourseImageResponse{}, ErrImageStorageUnavailable
		}

		course, err := s.ownedCourse(ctx, instructorID, courseID)
		if err != nil {
			span.RecordError(err)
			return dto.CourseImageResponse{}, err
		}

		if file.Size > s.maxImage {
			span.SetStatus(codes.Error, "payload too large")
			return dto.CourseImageResponse{}, ErrImageTooLarge
		}

		handle, err := file.Open()
		if err != nil {
			return dto.CourseImageResponse{}, apperr.Wrap(apperr.KindValidation, err, "unreadable image upload")
		}
		defer handle.Close()

		buf := bytes.NewBuffer(nil)
		if _, err := io.Copy(buf, io.LimitReader(handle, s.maxImage+1)); err != nil {
			return dto.CourseImageResponse{}, apperr.Wrap(apperr.KindValidation, err, "unreadable image upload")
		}
		if int64(buf.Len()) > s.maxImage {
			span.SetStatus(codes.Error, "payload too large")
			return dto.CourseImageResponse{}, ErrImageTooLarge
		}

		detected := mimetype.Detect(buf.Bytes())
		mimeType := strings.ToLower(strings.SplitN(detected.String(), ";", 2)[0])
		ext, ok := allowedImageTypes[mimeType]
		span.SetAttributes(attribute.String("upload.detected_mime", mimeType))
		if !ok {
			span.SetStatus(codes.Error, "type not allowed")
			return dto.CourseImageResponse{}, ErrImageTypeNotAllowed
		}

		url, err := s.storage.Upload(ctx, course.Slug+ext, bytes.NewReader(buf.Bytes()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage failed")
			return dto.CourseImageResponse{}, apperr.Wrap(apperr.KindNetwork, err, "failed to store course image")
		}

		course.ImageURL = &url
		if err := s.courses.Update(ctx, &course); err != nil {
			span.RecordError(err)
			return dto.CourseImageResponse{}, err
		}
		s.invalidateCatalog(ctx)

		return dto.CourseImageResponse{
			CourseID:  course.ID,
			URL:       url,
			MimeType:  mimeType,
			SizeBytes: int64(buf.Len()),
		}, nil
	})
}

func (s *courseService) ListCategories(ctx context.Context) ([]dto.CategoryResponse, error) {
	return apperr.GuardValue(func() ([]dto.CategoryResponse, error) {
		ctx, span := s.tracer.Start(ctx, "categories.list")
		defer span.End()

		categories, err := s.categories.List(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return dto.NewCategoryResponses(categories), nil
	})
}

func (s *courseService) ownedCourse(ctx context.Context, instructorID, id string) (models.Course, error) {
	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		return models.Course{}, err
	}
	if course.InstructorID != instructorID {
		return models.Course{}, ErrNotCourseOwner
	}
	return course, nil
}

func (s *courseService) uniqueSlug(ctx context.Context, requested, title string) (string, error) {
	slug := slugify(requested)
	if slug == "" {
		slug = slugify(title)
	}
	if slug == "" {
		return "", apperr.New(apperr.KindValidation, "", "course slug cannot be derived from the title")
	}

	_, err := s.courses.GetBySlug(ctx, slug)
	switch {
	case err == nil:
		return fmt.Sprintf("%s-%s", slug, uuid.NewString()[:8]), nil
	case apperr.IsNotFound(err):
		return slug, nil
	default:
		return "", err
	}
}

func (s *courseService) sanitize(value *string) *string {
	if value == nil {
		return nil
	}
	clean := strings.TrimSpace(s.sanitizer.Sanitize(*value))
	if clean == "" {
		return nil
	}
	return &clean
}

func (s *courseService) servedFallback(operation string, cause error) {
	observability.FallbackServed().WithLabelValues(operation).Inc()
	s.logger.Warn().Err(cause).Str("operation", operation).Msg("serving placeholder course")
}

func (s *courseService) readCache(ctx context.Context, key string) ([]dto.CourseResponse, bool) {
	if s.cache == nil {
		return nil, false
	}

	cached, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read catalog cache")
		}
		observability.CatalogCache().WithLabelValues("miss").Inc()
		return nil, false
	}

	var responses []dto.CourseResponse
	if err := json.Unmarshal(cached, &responses); err != nil {
		observability.CatalogCache().WithLabelValues("miss").Inc()
		return nil, false
	}

	observability.CatalogCache().WithLabelValues("hit").Inc()
	return responses, true
}

func (s *courseService) writeCache(ctx context.Context, key string, responses []dto.CourseResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(responses)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to store catalog cache")
	}
}

func (s *courseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}

	iter := s.cache.Scan(ctx, 0, catalogKeyPattern, 100).Iterator()
	keys := make([]string, 0, 4)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to scan catalog cache")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate catalog cache")
	}
}

func slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	clean := strings.TrimSpace(*value)
	if clean == "" {
		return nil
	}
	return &clean
}
