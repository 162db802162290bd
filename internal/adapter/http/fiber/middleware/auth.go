package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/andescharge/csms/internal/ports"
)

// AuthRequired validates the bearer token and stores the operator on the
// request context.
func AuthRequired(authService ports.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			return fiber.NewError(fiber.StatusUnauthorized, "malformed authorization header")
		}

		user, err := authService.ValidateToken(c.Context(), token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals("user", user)
		return c.Next()
	}
}
