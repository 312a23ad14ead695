package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type Config struct {
	// MaxBodySize bounds mutating request bodies. Document submissions
	// carry chunk embeddings, so the ceiling is generous.
	MaxBodySize int
}

// Middleware rejects mutating requests that are not JSON or exceed the body
// ceiling before any handler parses them.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 32 * 1024 * 1024
	}

	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
		default:
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Content-Type must be application/json",
			})
		}

		if len(c.Body()) > cfg.MaxBodySize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Request body exceeds maximum size",
			})
		}

		return c.Next()
	}
}
