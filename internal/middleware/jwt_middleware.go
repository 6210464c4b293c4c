package middleware

import (
	"strings"

	"ecofinds/internal/logger"

	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the Locals key under which AuthRequired stores the caller's id.
const UserIDKey = "user_id"

// TokenAuthenticator resolves a bearer token to a user id.
type TokenAuthenticator interface {
	Authenticate(token string) (uint, error)
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(authenticator TokenAuthenticator, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		userID, err := authenticator.Authenticate(parts[1])
		if err != nil {
			log.Debug("JWT validation failed", "error", err, "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
				"error":   "invalid token",
			})
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}
