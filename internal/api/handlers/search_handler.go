package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/retrieval"
	"github.com/hr-assistant/backend/pkg/logger"
)

type SearchHandler struct {
	engine        *retrieval.Engine
	previewLength int
}

func NewSearchHandler(engine *retrieval.Engine, previewLength int) *SearchHandler {
	if previewLength <= 0 {
		previewLength = 500
	}
	return &SearchHandler{engine: engine, previewLength: previewLength}
}

type searchRequest struct {
	Query   string `json:"query"`
	OwnerID string `json:"owner_id"`
	Limit   int    `json:"limit"`
	Filters struct {
		Skill           string `json:"skill"`
		Status          string `json:"status"`
		MimeType        string `json:"mime_type"`
		ExperienceLevel string `json:"experience_level"`
		UploadedAfter   int64  `json:"uploaded_after"`
		UploadedBefore  int64  `json:"uploaded_before"`
	} `json:"filters"`
}

// Search runs a filtered hybrid search. An empty query is allowed and
// returns filter matches ordered by recency.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	query := retrieval.Query{
		Text:    req.Query,
		OwnerID: req.OwnerID,
		Limit:   req.Limit,
		Filters: retrieval.Filters{
			Skill:           req.Filters.Skill,
			Status:          req.Filters.Status,
			MimeType:        req.Filters.MimeType,
			ExperienceLevel: req.Filters.ExperienceLevel,
		},
	}
	if req.Filters.UploadedAfter > 0 {
		after := time.Unix(req.Filters.UploadedAfter, 0)
		query.Filters.UploadedAfter = &after
	}
	if req.Filters.UploadedBefore > 0 {
		before := time.Unix(req.Filters.UploadedBefore, 0)
		query.Filters.UploadedBefore = &before
	}

	result, err := h.engine.Search(c.Context(), query)
	if err != nil {
		logger.Error("Search failed", zap.String("query", req.Query), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	matches := make([]fiber.Map, 0, len(result.Matches))
	for _, m := range result.Matches {
		matches = append(matches, fiber.Map{
			"id":       m.Document.ID,
			"filename": m.Document.Filename,
			"status":   m.Document.Status,
			"preview":  truncate(m.Document.Content, h.previewLength),
			"score":    m.Score,
			"signals": fiber.Map{
				"lexical":       m.Signals.Lexical,
				"semantic":      m.Signals.Semantic,
				"has_embedding": m.Signals.HasEmbedding,
			},
		})
	}

	return c.JSON(fiber.Map{
		"matches": matches,
		"total":   result.Total,
	})
}
