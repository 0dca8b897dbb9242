package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"gridpick_backend/pkg/utils/jwt"
)

const (
	userLocalsKey = "user"
	SessionCookie = "__session"
)

// Authenticate attaches the caller's claims when a valid token is present.
// Requests without one continue anonymously; the access gate or RequireAuth
// decides what that means.
func Authenticate(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := bearerToken(c); token != "" {
			if claims, err := jwt.ValidateToken(secret, token); err == nil {
				c.Locals(userLocalsKey, claims)
			}
		}
		return c.Next()
	}
}

// RequireAuth rejects requests without a valid token.
func RequireAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authentication token",
			})
		}
		claims, err := jwt.ValidateToken(secret, token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}
		c.Locals(userLocalsKey, claims)
		return c.Next()
	}
}

func CurrentUser(c *fiber.Ctx) (*jwt.Claims, bool) {
	claims, ok := c.Locals(userLocalsKey).(*jwt.Claims)
	return claims, ok && claims != nil
}

// UserID returns the authenticated user id or "".
func UserID(c *fiber.Ctx) string {
	if claims, ok := CurrentUser(c); ok {
		return claims.UserID()
	}
	return ""
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(c.Cookies(SessionCookie))
}
