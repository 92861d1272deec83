package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/postpilot/publisher/configs"
	"github.com/postpilot/publisher/pkg/utils"
)

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// SchedulerAuth guards the internal endpoints invoked by the external
// scheduler. It expects a bearer token signed with the shared secret.
func (m *AuthMiddleware) SchedulerAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := utils.ValidateSchedulerToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals("scope", claims.Scope)
		return c.Next()
	}
}
