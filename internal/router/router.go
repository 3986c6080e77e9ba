package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/learnhub-api/internal/config"
	"github.com/noah-isme/learnhub-api/internal/handler"
	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	CourseHandler     *handler.CourseHandler
	EnrollmentHandler *handler.EnrollmentHandler
	InstructorHandler *handler.InstructorHandler
	SeedHandler       *handler.SeedHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
	// Profiles resolves the stored role of the caller for instructor routes.
	Profiles middleware.ProfileLookup
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	instructorOnly := []fiber.Handler{jwtMiddleware}
	if deps.Profiles != nil {
		instructorOnly = append(instructorOnly, middleware.ProfileRole(deps.Profiles))
	}
	instructorOnly = append(instructorOnly, middleware.RequireRole(models.RoleInstructor))

	if deps.AuthHandler != nil {
		window := cfg.AuthRateWindow
		if window <= 0 {
			window = time.Minute
		}
		authGroup := api.Group("/auth")
		deps.AuthHandler.Register(authGroup, middleware.RateLimit("auth", cfg.AuthRateLimit, window))
		deps.AuthHandler.RegisterSession(authGroup, jwtMiddleware)
		deps.AuthHandler.RegisterProfile(api.Group("/profile"), jwtMiddleware)
	}

	if deps.CourseHandler != nil {
		deps.CourseHandler.RegisterCategories(api.Group("/categories"))
		deps.CourseHandler.Register(api.Group("/courses"), instructorOnly...)
	}

	if deps.InstructorHandler != nil {
		deps.InstructorHandler.Register(api.Group("/instructor", instructorOnly...))
	}

	if deps.EnrollmentHandler != nil {
		deps.EnrollmentHandler.Register(api.Group("/enrollments", jwtMiddleware))
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}
}
