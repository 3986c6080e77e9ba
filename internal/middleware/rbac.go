package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/learnhub-api/internal/apperr"
	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/utils"
)

// ProfileLookup resolves the profile row of an authenticated user.
type ProfileLookup interface {
	GetByID(ctx context.Context, id string) (models.Profile, error)
}

// ProfileRole replaces the identity-service role claim with the role stored on
// the caller's profile. Users without a profile row are students.
func ProfileRole(profiles ProfileLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserID(c)
		if userID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		role := models.RoleStudent
		profile, err := profiles.GetByID(c.UserContext(), userID)
		switch {
		case err == nil:
			role = profile.Role
		case !apperr.IsNotFound(err):
			return utils.SendAppError(c, err)
		}

		c.Locals(LocalUserRole, role)
		return c.Next()
	}
}

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[UserRole(c)]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", utils.ErrorDetails{Kind: string(apperr.KindPermission)})
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
