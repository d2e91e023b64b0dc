package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/google/uuid"
)

// SecurityHeaders applies OWASP recommended security headers
func SecurityHeaders() fiber.Handler {
	return helmet.New(helmet.Config{
		// X-XSS-Protection: Prevents XSS attacks
		XSSProtection: "1; mode=block",

		// X-Content-Type-Options: Prevents MIME sniffing
		ContentTypeNosniff: "nosniff",

		// X-Frame-Options: Prevents clickjacking
		XFrameOptions: "SAMEORIGIN",

		// Strict-Transport-Security: Enforces HTTPS
		HSTSMaxAge: 31536000, // 1 year

		// Content-Security-Policy: Restricts resource loading
		ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none';",

		// Referrer-Policy: Controls referrer information
		ReferrerPolicy: "strict-origin-when-cross-origin",
	})
}

// RequestIDMiddleware adds unique request ID for tracing
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("X-Request-ID", requestID)
		c.Locals("request_id", requestID)
		return c.Next()
	}
}
