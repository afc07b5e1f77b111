package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/analyze"
	"github.com/hr-assistant/backend/internal/embedding"
	"github.com/hr-assistant/backend/internal/extract"
	"github.com/hr-assistant/backend/internal/metrics"
	"github.com/hr-assistant/backend/internal/storage"
	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/pkg/logger"
	"github.com/hr-assistant/backend/pkg/utils"
)

// ErrValidation marks missing or malformed caller input.
var ErrValidation = errors.New("validation error")

// Processor drives one document through the lifecycle:
// pending -> processing -> completed | error. Analysis and embedding run
// concurrently off the same extracted text; each facet failure is isolated
// and only an extraction failure is terminal.
type Processor struct {
	store     storage.Store
	extractor *extract.Extractor
	analyzer  *analyze.Analyzer
	indexer   *embedding.Indexer
}

func NewProcessor(store storage.Store, extractor *extract.Extractor, analyzer *analyze.Analyzer, indexer *embedding.Indexer) *Processor {
	return &Processor{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		indexer:   indexer,
	}
}

// ProcessUpload ingests one uploaded file. Unsupported MIME types are
// rejected before a record exists; a structural extraction failure is
// recorded as a document in the error state.
func (p *Processor) ProcessUpload(ctx context.Context, fileBytes []byte, mimeType, filename, ownerID string, opts analyze.Options) (*models.Document, error) {
	if len(fileBytes) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrValidation)
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrValidation)
	}

	logger.Info("Processing upload",
		zap.String("filename", filename),
		zap.String("mime_type", mimeType),
		zap.String("owner_id", ownerID),
	)

	text, err := p.extractor.Extract(fileBytes, mimeType)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			return nil, err
		}

		metrics.ExtractionFailures.WithLabelValues(mimeType).Inc()

		// Record the failed upload so the caller can inspect the reason.
		doc := p.newDocument(filename, mimeType, ownerID, "")
		doc.Status = models.StatusError
		doc.ErrorReason = err.Error()
		if insertErr := p.store.InsertDocument(ctx, doc); insertErr != nil {
			logger.Error("Failed to record extraction failure", zap.Error(insertErr))
		}
		return nil, err
	}

	doc := p.newDocument(filename, mimeType, ownerID, text)
	doc.Status = models.StatusProcessing
	if err := p.store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	p.runFacets(ctx, doc, opts)

	if err := p.store.UpdateStatus(ctx, doc.ID, models.StatusCompleted, ""); err != nil {
		return nil, fmt.Errorf("failed to complete document: %w", err)
	}

	metrics.DocumentsProcessed.Inc()

	final, err := p.store.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	logger.Info("Document processed",
		zap.String("doc_id", final.ID),
		zap.Bool("analyzed", final.Analysis != nil),
		zap.Bool("embedded", final.Embedding != nil),
	)

	return final, nil
}

// runFacets executes analysis and embedding concurrently. The facets are
// independent and may settle in either order; each is published atomically
// by its store call.
func (p *Processor) runFacets(ctx context.Context, doc *models.Document, opts analyze.Options) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		result, err := p.analyzer.Analyze(ctx, doc.Content, doc.Filename, opts)
		if err != nil {
			metrics.AnalysisFailures.Inc()
			logger.Warn("Analysis facet failed", zap.String("doc_id", doc.ID), zap.Error(err))
			return
		}
		if err := p.store.UpdateAnalysis(ctx, doc.ID, result); err != nil {
			logger.Error("Failed to persist analysis", zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}()

	go func() {
		defer wg.Done()
		status, err := p.indexer.EmbedDocument(ctx, doc.ID)
		if err != nil {
			metrics.EmbeddingFailures.Inc()
			logger.Warn("Embedding facet failed", zap.String("doc_id", doc.ID), zap.Error(err))
			return
		}
		metrics.EmbeddingsComputed.WithLabelValues(string(status)).Inc()
	}()

	wg.Wait()
}

func (p *Processor) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return p.store.GetDocument(ctx, id)
}

// Reanalyze reruns analysis over stored content and replaces only the
// analysis facet; lifecycle status and the embedding facet are untouched.
func (p *Processor) Reanalyze(ctx context.Context, id string, opts analyze.Options) (*models.AnalysisResult, error) {
	doc, err := p.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := p.analyzer.Analyze(ctx, doc.Content, doc.Filename, opts)
	if err != nil {
		return nil, err
	}

	if err := p.store.UpdateAnalysis(ctx, id, result); err != nil {
		return nil, fmt.Errorf("failed to persist analysis: %w", err)
	}

	return result, nil
}

func (p *Processor) newDocument(filename, mimeType, ownerID, content string) *models.Document {
	now := time.Now()
	return &models.Document{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Filename:    filename,
		MimeType:    mimeType,
		Content:     content,
		ContentHash: utils.ContentHash(content),
		Status:      models.StatusPending,
		UploadedAt:  now,
		UpdatedAt:   now,
	}
}
