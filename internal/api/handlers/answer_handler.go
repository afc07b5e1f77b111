package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/answer"
	"github.com/hr-assistant/backend/pkg/logger"
)

type AnswerHandler struct {
	generator *answer.Generator
}

func NewAnswerHandler(generator *answer.Generator) *AnswerHandler {
	return &AnswerHandler{generator: generator}
}

type answerRequest struct {
	Query   string `json:"query"`
	OwnerID string `json:"owner_id"`
}

// Answer produces a grounded answer over the caller's documents. When
// nothing relevant is stored, the response says so rather than
// speculating.
func (h *AnswerHandler) Answer(c *fiber.Ctx) error {
	var req answerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.generator.Answer(c.Context(), req.Query, answer.Scope{OwnerID: req.OwnerID})
	if err != nil {
		if errors.Is(err, answer.ErrGenerationFailed) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Failed to generate answer",
			})
		}
		logger.Error("Answer failed", zap.String("query", req.Query), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate answer",
		})
	}

	sources := make([]fiber.Map, 0, len(result.Sources))
	for _, s := range result.Sources {
		sources = append(sources, fiber.Map{
			"document_id": s.DocumentID,
			"filename":    s.Filename,
			"score":       s.Score,
			"excerpt":     s.Excerpt,
		})
	}

	return c.JSON(fiber.Map{
		"answer":     result.Answer,
		"sources":    sources,
		"grounded":   result.Grounded,
		"latency_ms": result.LatencyMS,
	})
}
