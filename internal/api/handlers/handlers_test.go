package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hr-assistant/backend/internal/analyze"
	"github.com/hr-assistant/backend/internal/answer"
	"github.com/hr-assistant/backend/internal/embedding"
	"github.com/hr-assistant/backend/internal/extract"
	"github.com/hr-assistant/backend/internal/llm"
	"github.com/hr-assistant/backend/internal/pipeline"
	"github.com/hr-assistant/backend/internal/retrieval"
	"github.com/hr-assistant/backend/internal/storage/memory"
	"github.com/hr-assistant/backend/internal/storage/models"
)

type stubModel struct{}

func (s *stubModel) Summarize(ctx context.Context, content string) (string, error) {
	return "A summary.", nil
}

func (s *stubModel) ExtractKeywords(ctx context.Context, content string) ([]string, error) {
	return []string{"keyword"}, nil
}

func (s *stubModel) ExtractSkills(ctx context.Context, content string) ([]string, error) {
	return []string{"Go"}, nil
}

func (s *stubModel) ClassifyExperience(ctx context.Context, content string) (string, error) {
	return "mid", nil
}

func (s *stubModel) AnalyzeSentiment(ctx context.Context, content string) (string, error) {
	return "neutral", nil
}

func (s *stubModel) ExtractContact(ctx context.Context, content string) (*llm.ContactExtraction, error) {
	return &llm.ContactExtraction{}, nil
}

func (s *stubModel) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (s *stubModel) GenerateAnswer(ctx context.Context, query, contextBlock string, hasContext bool) (string, error) {
	if !hasContext {
		return "No supporting documents were found.", nil
	}
	return "Grounded answer.", nil
}

func newTestApp(t *testing.T) (*fiber.App, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	model := &stubModel{}

	extractor := extract.NewExtractor()
	analyzer := analyze.NewAnalyzer(model, 8000, 6, 2)
	indexer := embedding.NewIndexer(store, model, nil, "test-model", "v1", 4, 8000)
	engine := retrieval.NewEngine(store, model, 0.4, 0.6)
	generator := answer.NewGenerator(engine, model, 5, 600)
	processor := pipeline.NewProcessor(store, extractor, analyzer, indexer)

	documentHandler := NewDocumentHandler(processor, indexer, 500, 3)
	searchHandler := NewSearchHandler(engine, 500)
	answerHandler := NewAnswerHandler(generator)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents/:id", documentHandler.GetDocument)
	api.Post("/documents/:id/reanalyze", documentHandler.ReanalyzeDocument)
	api.Post("/documents/:id/embed", documentHandler.EmbedDocument)
	api.Post("/embeddings/backfill", documentHandler.BackfillEmbeddings)
	api.Post("/search", searchHandler.Search)
	api.Post("/answer", answerHandler.Answer)

	return app, store
}

func multipartUpload(t *testing.T, filename, mimeType, content string) *http.Request {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	require.NoError(t, writer.WriteField("mime_type", mimeType))
	require.NoError(t, writer.WriteField("owner_id", "owner-1"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestUploadDocument(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(multipartUpload(t, "profile.txt", "text/plain", "Mid-level Go engineer."), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "Mid-level Go engineer.", body["preview"])
	assert.Equal(t, true, body["embedded"])
	require.NotNil(t, body["analysis"])
}

func TestUploadDocument_MissingFile(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(""))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadDocument_UnsupportedFormat(t *testing.T) {
	app, store := newTestApp(t)

	resp, err := app.Test(multipartUpload(t, "pic.gif", "image/gif", "GIF89a"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Empty(t, store.AllDocuments())
}

func TestGetDocument_NotFound(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadThenGetDocument(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(multipartUpload(t, "doc.txt", "text/plain", "Handbook content."), -1)
	require.NoError(t, err)
	id := decodeJSON(t, resp)["id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+id, nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "owner-1", body["owner_id"])
	assert.NotNil(t, body["embedding"])
}

func TestReanalyzeDocument_NotFound(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/missing/reanalyze", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEmbedDocument_AlreadyCurrent(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(multipartUpload(t, "doc.txt", "text/plain", "Some content."), -1)
	require.NoError(t, err)
	id := decodeJSON(t, resp)["id"].(string)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+id+"/embed", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "already-current", body["status"])
}

func TestBackfillEmbeddings(t *testing.T) {
	app, _ := newTestApp(t)

	payload := strings.NewReader(`{"owner_id": "owner-1", "limit": 10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/embeddings/backfill", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.NotNil(t, body["updated_ids"])
	assert.NotNil(t, body["errors"])
}

func TestBackfillEmbeddings_OmittedLimitStaysBounded(t *testing.T) {
	app, store := newTestApp(t)

	for _, id := range []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5"} {
		err := store.InsertDocument(context.Background(), &models.Document{
			ID:          id,
			OwnerID:     "owner-1",
			Filename:    id + ".txt",
			MimeType:    "text/plain",
			Content:     "Benefits enrollment guide " + id,
			ContentHash: "hash-" + id,
			Status:      models.StatusCompleted,
		})
		require.NoError(t, err)
	}

	payload := strings.NewReader(`{"owner_id": "owner-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/embeddings/backfill", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	updated := body["updated_ids"].([]interface{})
	assert.Len(t, updated, 3, "batch should stop at the configured limit")
	assert.Empty(t, body["errors"])
}

func TestSearch(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(multipartUpload(t, "payroll.txt", "text/plain", "Payroll schedule for contractors."), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := strings.NewReader(`{"query": "payroll", "owner_id": "owner-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	matches := body["matches"].([]interface{})
	require.Len(t, matches, 1)
	first := matches[0].(map[string]interface{})
	assert.Equal(t, "payroll.txt", first["filename"])
	assert.NotNil(t, first["signals"])
}

func TestAnswer_UngroundedWhenEmpty(t *testing.T) {
	app, _ := newTestApp(t)

	payload := strings.NewReader(`{"query": "anything on sabbaticals?", "owner_id": "owner-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/answer", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, false, body["grounded"])
	assert.Contains(t, body["answer"], "No supporting documents")
}

func TestAnswer_Grounded(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(multipartUpload(t, "leave.txt", "text/plain", "Parental leave is 16 weeks."), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := strings.NewReader(`{"query": "parental leave", "owner_id": "owner-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/answer", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err = app.Test(req, -1)
	require.NoError(t, err)

	body := decodeJSON(t, resp)
	assert.Equal(t, true, body["grounded"])
	assert.Equal(t, "Grounded answer.", body["answer"])
	assert.NotEmpty(t, body["sources"])
}
