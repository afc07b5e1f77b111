package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/metrics"
	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/pkg/logger"
	"github.com/hr-assistant/backend/pkg/utils"
)

// ErrEmbeddingFailed marks a single-document embedding failure. Inside a
// backfill batch it is recorded per item and never aborts the batch.
var ErrEmbeddingFailed = errors.New("embedding failed")

// Embedder computes a fixed-dimension vector for bounded text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Store is the slice of the document store the indexer needs.
type Store interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateEmbedding(ctx context.Context, id string, rec *models.EmbeddingRecord) error
	ListEmbeddingCandidates(ctx context.Context, ownerID, currentVersion string, limit int) ([]*models.Document, error)
}

// Cache holds embeddings keyed by content hash so re-embedding identical
// content skips the provider. Optional; a nil implementation is fine.
type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

type Status string

const (
	StatusUpdated        Status = "updated"
	StatusAlreadyCurrent Status = "already-current"
)

type Indexer struct {
	store   Store
	embed   Embedder
	cache   Cache
	model   string
	version string
	dim     int
	charCap int
}

func NewIndexer(store Store, embed Embedder, cache Cache, model, version string, dim, charCap int) *Indexer {
	if charCap <= 0 {
		charCap = 8000
	}
	return &Indexer{
		store:   store,
		embed:   embed,
		cache:   cache,
		model:   model,
		version: version,
		dim:     dim,
		charCap: charCap,
	}
}

// EmbedDocument computes and persists the embedding for one document.
// Re-running against a non-stale document is a no-op reported as
// StatusAlreadyCurrent. Only the first charCap characters are embedded.
func (ix *Indexer) EmbedDocument(ctx context.Context, id string) (Status, error) {
	doc, err := ix.store.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}

	if !doc.Embedding.Stale(ix.version, doc.ContentHash) {
		logger.Debug("Embedding already current", zap.String("doc_id", id))
		return StatusAlreadyCurrent, nil
	}

	rec, err := ix.compute(ctx, doc)
	if err != nil {
		return "", err
	}

	if err := ix.store.UpdateEmbedding(ctx, id, rec); err != nil {
		return "", fmt.Errorf("failed to persist embedding for %s: %w", id, err)
	}

	logger.Info("Embedding updated",
		zap.String("doc_id", id),
		zap.String("model", ix.model),
		zap.String("version", ix.version),
	)

	return StatusUpdated, nil
}

// BackfillResult reports partial success: every failed document appears in
// Errors with its reason, never as a batch-level failure.
type BackfillResult struct {
	UpdatedIDs []string
	Errors     []ItemError
}

type ItemError struct {
	DocumentID string
	Reason     string
}

// Backfill embeds up to limit documents whose embedding is missing or stale.
// Per-item failures are recorded and the batch continues; the call itself
// only fails when the candidate set cannot be fetched. Callers invoke it
// repeatedly until no candidates remain.
func (ix *Indexer) Backfill(ctx context.Context, ownerID string, limit int) (*BackfillResult, error) {
	candidates, err := ix.store.ListEmbeddingCandidates(ctx, ownerID, ix.version, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backfill candidates: %w", err)
	}

	result := &BackfillResult{}

	for _, doc := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !doc.Embedding.Stale(ix.version, doc.ContentHash) {
			continue
		}

		rec, err := ix.compute(ctx, doc)
		if err == nil {
			err = ix.store.UpdateEmbedding(ctx, doc.ID, rec)
		}
		if err != nil {
			logger.Warn("Backfill item failed",
				zap.String("doc_id", doc.ID),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, ItemError{
				DocumentID: doc.ID,
				Reason:     err.Error(),
			})
			continue
		}

		result.UpdatedIDs = append(result.UpdatedIDs, doc.ID)
	}

	metrics.BackfillBatches.Inc()
	metrics.BackfillItems.WithLabelValues("updated").Add(float64(len(result.UpdatedIDs)))
	metrics.BackfillItems.WithLabelValues("failed").Add(float64(len(result.Errors)))

	logger.Info("Backfill batch finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("updated", len(result.UpdatedIDs)),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}

func (ix *Indexer) compute(ctx context.Context, doc *models.Document) (*models.EmbeddingRecord, error) {
	text := utils.TruncateText(doc.Content, ix.charCap)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document %s has no embeddable text", ErrEmbeddingFailed, doc.ID)
	}

	cacheKey := ix.cacheKey(text)

	if ix.cache != nil {
		if vector, ok, err := ix.cache.GetEmbedding(ctx, cacheKey); err == nil && ok {
			logger.Debug("Embedding cache hit", zap.String("doc_id", doc.ID))
			return ix.record(doc, vector)
		}
	}

	vector, err := ix.embed.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	if ix.cache != nil {
		if err := ix.cache.SetEmbedding(ctx, cacheKey, vector, 24*time.Hour); err != nil {
			logger.Debug("Embedding cache write failed", zap.Error(err))
		}
	}

	return ix.record(doc, vector)
}

func (ix *Indexer) record(doc *models.Document, vector []float32) (*models.EmbeddingRecord, error) {
	if ix.dim > 0 && len(vector) != ix.dim {
		return nil, fmt.Errorf("%w: provider returned %d dimensions, expected %d",
			ErrEmbeddingFailed, len(vector), ix.dim)
	}

	return &models.EmbeddingRecord{
		Vector:      vector,
		Model:       ix.model,
		Version:     ix.version,
		ContentHash: doc.ContentHash,
		ComputedAt:  time.Now(),
	}, nil
}

func (ix *Indexer) cacheKey(text string) string {
	return fmt.Sprintf("%s:%s:%s", ix.model, ix.version, utils.HashString(text))
}
