package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxQueryLength  int
	MaxDocumentSize int
	Logger          *zap.Logger
}

// Middleware applies request-shape checks before handlers run: JSON query
// endpoints get a non-empty, bounded query string; uploads get a size cap.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 5000
	}
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 20 * 1024 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/answer") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			query, ok := req["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query is required and must be a string",
				})
			}

			if len(query) > cfg.MaxQueryLength {
				cfg.Logger.Warn("Oversized query rejected",
					zap.String("path", path),
					zap.Int("length", len(query)),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Query exceeds maximum length",
				})
			}
		}

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/documents") {
			if len(c.Body()) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Document exceeds maximum size",
				})
			}
		}

		return c.Next()
	}
}
