package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/practicetrack/api/pkg/response"
)

// ServiceAuthMiddleware verifies the shared token presented by internal
// collaborators (the session service, the gateway) and records the
// calling service identity for rate limiting.
func ServiceAuthMiddleware(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		presented := c.Get("X-Service-Token")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return response.Unauthorized(c, "Invalid service token")
		}

		caller := c.Get("X-Caller-Id")
		if caller == "" {
			caller = c.IP()
		}
		c.Locals("callerId", caller)

		return c.Next()
	}
}

// GetCallerID extracts the calling service identity from context
func GetCallerID(c *fiber.Ctx) string {
	if caller, ok := c.Locals("callerId").(string); ok {
		return caller
	}
	return ""
}
