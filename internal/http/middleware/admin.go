package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyAuth guards operator endpoints.
// Expects: Authorization: Bearer <admin_key>, checked against keyHash.
//
// With no hash configured the endpoints are open unless locked is set, which
// production does.
func AdminKeyAuth(keyHash string, locked bool, logger *slog.Logger) fiber.Handler {
	hash := []byte(strings.TrimSpace(keyHash))

	return func(c *fiber.Ctx) error {
		if len(hash) == 0 {
			if locked {
				logger.Warn("Admin key not configured, rejecting admin request",
					slog.String("path", c.Path()))
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Admin key not configured",
					"code":  "ADMIN_DISABLED",
				})
			}
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
				"code":  "UNAUTHORIZED",
			})
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization header format. Expected: Bearer <admin_key>",
				"code":  "UNAUTHORIZED",
			})
		}

		providedKey := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if providedKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Admin key is empty",
				"code":  "UNAUTHORIZED",
			})
		}

		// bcrypt compares in constant time
		if err := bcrypt.CompareHashAndPassword(hash, []byte(providedKey)); err != nil {
			logger.Debug("Rejected admin key", slog.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin key",
				"code":  "UNAUTHORIZED",
			})
		}

		return c.Next()
	}
}
