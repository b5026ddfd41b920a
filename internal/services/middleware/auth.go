package middleware

import (
	"strings"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/apikey"

	"github.com/gofiber/fiber/v2"
)

const userContextKey = "gateway_user"

// AuthMiddleware resolves bearer tokens into user identities before the
// handlers run.
type AuthMiddleware struct {
	keys      *apikey.Service
	skipPaths []string
}

func NewAuthMiddleware(keys *apikey.Service) *AuthMiddleware {
	return &AuthMiddleware{
		keys: keys,
		skipPaths: []string{
			"/health",
			"/metrics",
		},
	}
}

// RequireAuth rejects requests without a valid API key.
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, path := range m.skipPaths {
			if c.Path() == path {
				return c.Next()
			}
		}

		token := extractBearer(c.Get("Authorization"))
		user, err := m.keys.Validate(c.Context(), token)
		if err != nil {
			return err
		}

		c.Locals(userContextKey, *user)
		return c.Next()
	}
}

// RequireAdmin rejects non-admin identities. The master key counts as
// admin.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := UserFromContext(c)
		if !user.Admin && !user.Master {
			return models.NewInsufficientPermissionError("this operation requires an admin API key")
		}
		return c.Next()
	}
}

// UserFromContext returns the authenticated identity attached by
// RequireAuth. Handlers behind the middleware can rely on it being set.
func UserFromContext(c *fiber.Ctx) models.UserInfo {
	user, _ := c.Locals(userContextKey).(models.UserInfo)
	return user
}

func extractBearer(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
