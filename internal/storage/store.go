package storage

import (
	"context"
	"fmt"

	"github.com/hr-assistant/backend/internal/storage/memory"
	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/internal/storage/postgres"
	"github.com/hr-assistant/backend/internal/storage/sqlite"
	"github.com/hr-assistant/backend/pkg/config"
)

// ErrNotFound aliases the backend sentinel so callers can errors.Is against
// one value regardless of driver.
var ErrNotFound = models.ErrNotFound

// Store is the persistence collaborator of the pipeline. Analysis and
// embedding updates are facet writes: each replaces its facet atomically and
// touches nothing else on the record. The store never deletes documents.
type Store interface {
	InsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateStatus(ctx context.Context, id, status, errorReason string) error
	UpdateAnalysis(ctx context.Context, id string, res *models.AnalysisResult) error
	UpdateEmbedding(ctx context.Context, id string, rec *models.EmbeddingRecord) error

	// ListEmbeddingCandidates returns up to limit documents whose embedding
	// is missing or stale relative to currentVersion, oldest update first.
	// ownerID narrows the scope when non-empty.
	ListEmbeddingCandidates(ctx context.Context, ownerID, currentVersion string, limit int) ([]*models.Document, error)

	// ListDocuments returns every non-error document in scope, for retrieval
	// scoring. ownerID narrows the scope when non-empty.
	ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error)

	InsertSearchLog(ctx context.Context, log *models.SearchLog) error

	Close() error
}

// New builds the store selected by cfg.Driver. embeddingDim sizes the
// pgvector column; the other drivers store vectors untyped and ignore it.
func New(cfg config.StorageConfig, embeddingDim int) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.NewClient(cfg.SQLitePath)
	case "postgres":
		return postgres.NewClient(context.Background(), cfg.PostgresDSN, embeddingDim)
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
