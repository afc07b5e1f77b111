package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/analyze"
	"github.com/hr-assistant/backend/internal/embedding"
	"github.com/hr-assistant/backend/internal/extract"
	"github.com/hr-assistant/backend/internal/pipeline"
	"github.com/hr-assistant/backend/internal/storage"
	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/pkg/logger"
	"github.com/hr-assistant/backend/pkg/utils"
)

type DocumentHandler struct {
	processor     *pipeline.Processor
	indexer       *embedding.Indexer
	previewLength int
	backfillLimit int
}

func NewDocumentHandler(processor *pipeline.Processor, indexer *embedding.Indexer, previewLength, backfillLimit int) *DocumentHandler {
	if previewLength <= 0 {
		previewLength = 500
	}
	if backfillLimit <= 0 {
		backfillLimit = 25
	}
	return &DocumentHandler{
		processor:     processor,
		indexer:       indexer,
		previewLength: previewLength,
		backfillLimit: backfillLimit,
	}
}

// UploadDocument accepts a multipart upload and runs it through the
// pipeline. Analysis flags arrive as form fields and default to enabled.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A file upload is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded file",
		})
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded file",
		})
	}

	mimeType := c.FormValue("mime_type")
	if mimeType == "" {
		mimeType = fileHeader.Header.Get("Content-Type")
	}

	ownerID := c.FormValue("owner_id")
	opts := parseAnalysisOptions(c)

	doc, err := h.processor.ProcessUpload(c.Context(), fileBytes, mimeType, fileHeader.Filename, ownerID, opts)
	if err != nil {
		return h.documentError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":       doc.ID,
		"filename": doc.Filename,
		"status":   doc.Status,
		"preview":  truncate(doc.Content, h.previewLength),
		"analysis": analysisResponse(doc.Analysis),
		"embedded": doc.Embedding != nil,
	})
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.processor.GetDocument(c.Context(), c.Params("id"))
	if err != nil {
		return h.documentError(c, err)
	}

	response := fiber.Map{
		"id":          doc.ID,
		"owner_id":    doc.OwnerID,
		"filename":    doc.Filename,
		"mime_type":   doc.MimeType,
		"status":      doc.Status,
		"preview":     truncate(doc.Content, h.previewLength),
		"analysis":    analysisResponse(doc.Analysis),
		"uploaded_at": doc.UploadedAt.Unix(),
		"updated_at":  doc.UpdatedAt.Unix(),
	}
	if doc.ErrorReason != "" {
		response["error_reason"] = doc.ErrorReason
	}
	if doc.Embedding != nil {
		response["embedding"] = fiber.Map{
			"model":       doc.Embedding.Model,
			"version":     doc.Embedding.Version,
			"computed_at": doc.Embedding.ComputedAt.Unix(),
		}
	}

	return c.JSON(response)
}

// ReanalyzeDocument reruns analysis over stored content; only the analysis
// facet is replaced.
func (h *DocumentHandler) ReanalyzeDocument(c *fiber.Ctx) error {
	result, err := h.processor.Reanalyze(c.Context(), c.Params("id"), parseAnalysisOptions(c))
	if err != nil {
		return h.documentError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":       c.Params("id"),
		"analysis": analysisResponse(result),
	})
}

func (h *DocumentHandler) EmbedDocument(c *fiber.Ctx) error {
	status, err := h.indexer.EmbedDocument(c.Context(), c.Params("id"))
	if err != nil {
		return h.documentError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":     c.Params("id"),
		"status": string(status),
	})
}

func (h *DocumentHandler) BackfillEmbeddings(c *fiber.Ctx) error {
	var req struct {
		OwnerID string `json:"owner_id"`
		Limit   int    `json:"limit"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// The batch stays bounded even when the caller omits the limit; the
	// store drivers disagree on what limit 0 means.
	limit := req.Limit
	if limit <= 0 {
		limit = h.backfillLimit
	}

	result, err := h.indexer.Backfill(c.Context(), req.OwnerID, limit)
	if err != nil {
		logger.Error("Backfill failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to run backfill",
		})
	}

	errs := make([]fiber.Map, 0, len(result.Errors))
	for _, item := range result.Errors {
		errs = append(errs, fiber.Map{
			"document_id": item.DocumentID,
			"reason":      item.Reason,
		})
	}

	return c.JSON(fiber.Map{
		"updated_ids": result.UpdatedIDs,
		"errors":      errs,
	})
}

func (h *DocumentHandler) documentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, pipeline.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, extract.ErrExtractionFailed),
		errors.Is(err, analyze.ErrAnalysisFailed),
		errors.Is(err, embedding.ErrEmbeddingFailed):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		logger.Error("Document operation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal error",
		})
	}
}

func parseAnalysisOptions(c *fiber.Ctx) analyze.Options {
	opts := analyze.DefaultOptions()

	flag := func(name string, target *bool) {
		if v := c.FormValue(name); v != "" {
			*target = v == "true" || v == "1"
		}
	}

	flag("generate_summary", &opts.GenerateSummary)
	flag("extract_keywords", &opts.ExtractKeywords)
	flag("extract_skills", &opts.ExtractSkills)
	flag("classify_experience", &opts.ClassifyExperience)
	flag("analyze_sentiment", &opts.AnalyzeSentiment)
	flag("extract_contact_info", &opts.ExtractContactInfo)

	return opts
}

func analysisResponse(res *models.AnalysisResult) interface{} {
	if res == nil {
		return nil
	}

	return fiber.Map{
		"summary":          res.Summary,
		"keywords":         res.Keywords,
		"skills":           res.Skills,
		"experience_level": res.ExperienceLevel,
		"sentiment":        res.Sentiment,
		"contact": fiber.Map{
			"name":  res.Contact.Name,
			"email": res.Contact.Email,
			"phone": res.Contact.Phone,
			"links": res.Contact.Links,
		},
		"failures": res.Failures,
	}
}

func truncate(text string, limit int) string {
	return utils.TruncateText(text, limit)
}
