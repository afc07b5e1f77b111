package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	client := &Client{db: db}
	if err := client.initSchema(); err != nil {
		return nil, err
	}

	logger.Info("SQLite store initialized", zap.String("path", dbPath))

	return client, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		error_reason TEXT,
		analysis_json TEXT,
		embedding_json TEXT,
		embedding_model TEXT,
		embedding_version TEXT,
		embedding_hash TEXT,
		embedding_updated_at INTEGER,
		uploaded_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);
	CREATE INDEX IF NOT EXISTS idx_documents_embedding_version ON documents(embedding_version);

	CREATE TABLE IF NOT EXISTS search_logs (
		id TEXT PRIMARY KEY,
		owner_id TEXT,
		query TEXT NOT NULL,
		filters_json TEXT,
		result_count INTEGER NOT NULL,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_search_logs_owner ON search_logs(owner_id);
	CREATE INDEX IF NOT EXISTS idx_search_logs_created ON search_logs(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, owner_id, filename, mime_type, content, content_hash,
			status, error_reason, uploaded_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OwnerID,
		doc.Filename,
		doc.MimeType,
		doc.Content,
		doc.ContentHash,
		doc.Status,
		doc.ErrorReason,
		doc.UploadedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("filename", doc.Filename))
	return nil
}

const documentColumns = `id, owner_id, filename, mime_type, content, content_hash,
	status, error_reason, analysis_json, embedding_json, embedding_model,
	embedding_version, embedding_hash, embedding_updated_at, uploaded_at, updated_at`

func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id, status, errorReason string) error {
	res, err := c.db.ExecContext(
		ctx,
		`UPDATE documents SET status = ?, error_reason = ?, updated_at = ? WHERE id = ?`,
		status,
		errorReason,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	return requireRow(res)
}

func (c *Client) UpdateAnalysis(ctx context.Context, id string, result *models.AnalysisResult) error {
	analysisJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	res, err := c.db.ExecContext(
		ctx,
		`UPDATE documents SET analysis_json = ?, updated_at = ? WHERE id = ?`,
		string(analysisJSON),
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}

	logger.Debug("Analysis persisted", zap.String("doc_id", id))
	return requireRow(res)
}

// UpdateEmbedding writes the whole embedding facet in one statement so no
// reader sees a vector without its version tag.
func (c *Client) UpdateEmbedding(ctx context.Context, id string, rec *models.EmbeddingRecord) error {
	vectorJSON, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding vector: %w", err)
	}

	res, err := c.db.ExecContext(
		ctx,
		`UPDATE documents SET embedding_json = ?, embedding_model = ?, embedding_version = ?,
			embedding_hash = ?, embedding_updated_at = ?, updated_at = ?
		WHERE id = ? AND (embedding_updated_at IS NULL OR embedding_updated_at <= ?)`,
		string(vectorJSON),
		rec.Model,
		rec.Version,
		rec.ContentHash,
		rec.ComputedAt.Unix(),
		time.Now().Unix(),
		id,
		rec.ComputedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// Either the id is unknown or a newer record is already in place;
		// the guard keeps computed_at monotonic per document.
		if _, getErr := c.GetDocument(ctx, id); getErr != nil {
			return getErr
		}
		logger.Debug("Embedding write skipped, newer record present", zap.String("doc_id", id))
		return nil
	}

	logger.Debug("Embedding persisted",
		zap.String("doc_id", id),
		zap.String("version", rec.Version),
	)
	return nil
}

func (c *Client) ListEmbeddingCandidates(ctx context.Context, ownerID, currentVersion string, limit int) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE status != ?
		AND (embedding_json IS NULL OR embedding_version != ? OR embedding_hash != content_hash)`
	args := []interface{}{models.StatusError, currentVersion}

	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	query += ` ORDER BY updated_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	return c.queryDocuments(ctx, query, args...)
}

func (c *Client) ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE status != ?`
	args := []interface{}{models.StatusError}

	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	query += ` ORDER BY id ASC`

	return c.queryDocuments(ctx, query, args...)
}

func (c *Client) InsertSearchLog(ctx context.Context, log *models.SearchLog) error {
	filtersJSON, _ := json.Marshal(log.Filters)

	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO search_logs (id, owner_id, query, filters_json, result_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.OwnerID,
		log.Query,
		string(filtersJSON),
		log.ResultCount,
		log.LatencyMS,
		log.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert search log: %w", err)
	}

	return nil
}

func (c *Client) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
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
	var errorReason, analysisJSON, embeddingJSON, embeddingModel, embeddingVersion, embeddingHash sql.NullString
	var embeddingUpdatedAt sql.NullInt64
	var uploadedAt, updatedAt int64

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
		&embeddingJSON,
		&embeddingModel,
		&embeddingVersion,
		&embeddingHash,
		&embeddingUpdatedAt,
		&uploadedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.ErrorReason = errorReason.String
	doc.UploadedAt = time.Unix(uploadedAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	if analysisJSON.Valid && analysisJSON.String != "" {
		var res models.AnalysisResult
		if err := json.Unmarshal([]byte(analysisJSON.String), &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
		doc.Analysis = &res
	}

	if embeddingJSON.Valid && embeddingJSON.String != "" {
		var vector []float32
		if err := json.Unmarshal([]byte(embeddingJSON.String), &vector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
		doc.Embedding = &models.EmbeddingRecord{
			Vector:      vector,
			Model:       embeddingModel.String,
			Version:     embeddingVersion.String,
			ContentHash: embeddingHash.String,
			ComputedAt:  time.Unix(embeddingUpdatedAt.Int64, 0),
		}
	}

	return &doc, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}
