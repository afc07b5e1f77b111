package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/pkg/logger"
)

// Client is the postgres document store. Embedding vectors live in a pgvector
// column; everything else mirrors the sqlite layout.
type Client struct {
	pool *pgxpool.Pool
}

func NewClient(ctx context.Context, dsn string, embeddingDim int) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{pool: pool}
	if err := client.initSchema(ctx, embeddingDim); err != nil {
		return nil, err
	}

	logger.Info("Postgres store initialized")

	return client, nil
}

func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

func (c *Client) initSchema(ctx context.Context, embeddingDim int) error {
	if _, err := c.pool.Exec(ctx, schemaSQL(embeddingDim)); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// schemaSQL sizes the pgvector column to the configured embedding dimension
// so non-default models don't fail at insert time.
func schemaSQL(embeddingDim int) string {
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}
	return fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		error_reason TEXT,
		analysis_json JSONB,
		embedding vector(%d),
		embedding_model TEXT,
		embedding_version TEXT,
		embedding_hash TEXT,
		embedding_updated_at TIMESTAMPTZ,
		uploaded_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

	CREATE TABLE IF NOT EXISTS search_logs (
		id TEXT PRIMARY KEY,
		owner_id TEXT,
		query TEXT NOT NULL,
		filters_json JSONB,
		result_count INTEGER NOT NULL,
		latency_ms INTEGER,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_search_logs_owner ON search_logs(owner_id);
	`, embeddingDim)
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO documents (id, owner_id, filename, mime_type, content, content_hash,
			status, error_reason, uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID, doc.OwnerID, doc.Filename, doc.MimeType, doc.Content, doc.ContentHash,
		doc.Status, doc.ErrorReason, doc.UploadedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID))
	return nil
}

const documentColumns = `id, owner_id, filename, mime_type, content, content_hash,
	status, error_reason, analysis_json, embedding, embedding_model,
	embedding_version, embedding_hash, embedding_updated_at, uploaded_at, updated_at`

func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id, status, errorReason string) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE documents SET status = $1, error_reason = $2, updated_at = NOW() WHERE id = $3`,
		status, errorReason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (c *Client) UpdateAnalysis(ctx context.Context, id string, result *models.AnalysisResult) error {
	analysisJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	tag, err := c.pool.Exec(ctx,
		`UPDATE documents SET analysis_json = $1, updated_at = NOW() WHERE id = $2`,
		analysisJSON, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (c *Client) UpdateEmbedding(ctx context.Context, id string, rec *models.EmbeddingRecord) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE documents SET embedding = $1, embedding_model = $2, embedding_version = $3,
			embedding_hash = $4, embedding_updated_at = $5, updated_at = NOW()
		WHERE id = $6 AND (embedding_updated_at IS NULL OR embedding_updated_at <= $5)`,
		pgvector.NewVector(rec.Vector), rec.Model, rec.Version, rec.ContentHash, rec.ComputedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := c.GetDocument(ctx, id); getErr != nil {
			return getErr
		}
		return nil
	}

	logger.Debug("Embedding persisted", zap.String("doc_id", id), zap.String("version", rec.Version))
	return nil
}

func (c *Client) ListEmbeddingCandidates(ctx context.Context, ownerID, currentVersion string, limit int) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE status != $1
		AND (embedding IS NULL OR embedding_version != $2 OR embedding_hash != content_hash)`
	args := []interface{}{models.StatusError, currentVersion}

	if ownerID != "" {
		query += fmt.Sprintf(` AND owner_id = $%d`, len(args)+1)
		args = append(args, ownerID)
	}

	query += fmt.Sprintf(` ORDER BY updated_at ASC, id ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	return c.queryDocuments(ctx, query, args...)
}

func (c *Client) ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE status != $1`
	args := []interface{}{models.StatusError}

	if ownerID != "" {
		query += ` AND owner_id = $2`
		args = append(args, ownerID)
	}

	query += ` ORDER BY id ASC`

	return c.queryDocuments(ctx, query, args...)
}

func (c *Client) InsertSearchLog(ctx context.Context, log *models.SearchLog) error {
	filtersJSON, _ := json.Marshal(log.Filters)

	_, err := c.pool.Exec(ctx,
		`INSERT INTO search_logs (id, owner_id, query, filters_json, result_count, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID, log.OwnerID, log.Query, filtersJSON, log.ResultCount, log.LatencyMS, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert search log: %w", err)
	}

	return nil
}

func (c *Client) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return docs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var errorReason, embeddingModel, embeddingVersion, embeddingHash *string
	var analysisJSON []byte
	var embedding *pgvector.Vector
	var embeddingUpdatedAt *time.Time

	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.MimeType,
		&doc.Content,
		&doc.ContentHash,
		&doc.Status,
		&errorReason,
		&analysisJSON,
		&embedding,
		&embeddingModel,
		&embeddingVersion,
		&embeddingHash,
		&embeddingUpdatedAt,
		&doc.UploadedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorReason != nil {
		doc.ErrorReason = *errorReason
	}

	if len(analysisJSON) > 0 {
		var res models.AnalysisResult
		if err := json.Unmarshal(analysisJSON, &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
		doc.Analysis = &res
	}

	if embedding != nil && embeddingVersion != nil && embeddingUpdatedAt != nil {
		rec := &models.EmbeddingRecord{
			Vector:     embedding.Slice(),
			Version:    *embeddingVersion,
			ComputedAt: *embeddingUpdatedAt,
		}
		if embeddingModel != nil {
			rec.Model = *embeddingModel
		}
		if embeddingHash != nil {
			rec.ContentHash = *embeddingHash
		}
		doc.Embedding = rec
	}

	return &doc, nil
}
