package middleware

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSConfig returns the CORS policy for the dispatch API.
func CORSConfig() fiber.Handler {
	return cors.New(cors.Config{
		// OWASP: Never use "*" in production with credentials
		AllowOrigins: allowedOrigins(),

		AllowMethods: "GET,POST,OPTIONS",

		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Sender-Id",

		AllowCredentials: false,

		ExposeHeaders: "Content-Length,X-Request-ID",

		// Cache preflight requests
		MaxAge: 3600, // 1 hour
	})
}

// allowedOrigins reads ALLOWED_ORIGINS, defaulting to localhost for
// development.
func allowedOrigins() string {
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		return v
	}
	return "http://localhost:3000,http://localhost:8080,http://127.0.0.1:3000"
}
