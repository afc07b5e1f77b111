package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hr-assistant/backend/internal/storage/models"
)

func newDoc(id, ownerID string) *models.Document {
	now := time.Now()
	return &models.Document{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    id + ".txt",
		MimeType:    "text/plain",
		Content:     "content of " + id,
		ContentHash: "hash-" + id,
		Status:      models.StatusCompleted,
		UploadedAt:  now,
		UpdatedAt:   now,
	}
}

func TestInsertAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.InsertDocument(ctx, newDoc("doc-1", "owner-1")))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "owner-1", doc.OwnerID)
}

func TestGet_Unknown(t *testing.T) {
	store := NewStore()

	_, err := store.GetDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReadsReturnCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	doc := newDoc("doc-1", "owner-1")
	doc.Analysis = &models.AnalysisResult{Skills: []string{"Go"}}
	require.NoError(t, store.InsertDocument(ctx, doc))

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	got.Analysis.Skills[0] = "mutated"
	got.Status = models.StatusError

	fresh, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Go", fresh.Analysis.Skills[0])
	assert.Equal(t, models.StatusCompleted, fresh.Status)
}

func TestUpdateStatus(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.InsertDocument(ctx, newDoc("doc-1", "")))
	require.NoError(t, store.UpdateStatus(ctx, "doc-1", models.StatusError, "parse failure"))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, doc.Status)
	assert.Equal(t, "parse failure", doc.ErrorReason)

	assert.ErrorIs(t, store.UpdateStatus(ctx, "missing", models.StatusCompleted, ""), models.ErrNotFound)
}

func TestUpdateAnalysisAndEmbeddingAreIndependent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.InsertDocument(ctx, newDoc("doc-1", "")))

	require.NoError(t, store.UpdateAnalysis(ctx, "doc-1", &models.AnalysisResult{Summary: "s"}))
	require.NoError(t, store.UpdateEmbedding(ctx, "doc-1", &models.EmbeddingRecord{
		Vector:      []float32{1, 2},
		Model:       "m",
		Version:     "v1",
		ContentHash: "hash-doc-1",
		ComputedAt:  time.Now(),
	}))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "s", doc.Analysis.Summary)
	assert.Equal(t, "v1", doc.Embedding.Version)

	// Replacing one facet leaves the other untouched.
	require.NoError(t, store.UpdateAnalysis(ctx, "doc-1", &models.AnalysisResult{Summary: "s2"}))
	doc, err = store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "s2", doc.Analysis.Summary)
	require.NotNil(t, doc.Embedding)
}

func TestListEmbeddingCandidates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	// doc-1: no embedding, doc-2: current, doc-3: old version, doc-4: error state.
	require.NoError(t, store.InsertDocument(ctx, newDoc("doc-1", "owner-1")))
	require.NoError(t, store.InsertDocument(ctx, newDoc("doc-2", "owner-1")))
	require.NoError(t, store.InsertDocument(ctx, newDoc("doc-3", "owner-1")))
	errored := newDoc("doc-4", "owner-1")
	errored.Status = models.StatusError
	require.NoError(t, store.InsertDocument(ctx, errored))

	require.NoError(t, store.UpdateEmbedding(ctx, "doc-2", &models.EmbeddingRecord{
		Vector: []float32{1}, Version: "v2", ContentHash: "hash-doc-2", ComputedAt: time.Now(),
	}))
	require.NoError(t, store.UpdateEmbedding(ctx, "doc-3", &models.EmbeddingRecord{
		Vector: []float32{1}, Version: "v1", ContentHash: "hash-doc-3", ComputedAt: time.Now(),
	}))

	candidates, err := store.ListEmbeddingCandidates(ctx, "owner-1", "v2", 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"doc-1", "doc-3"}, ids)
}

func TestListEmbeddingCandidates_Limit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		require.NoError(t, store.InsertDocument(ctx, newDoc(id, "")))
	}

	candidates, err := store.ListEmbeddingCandidates(ctx, "", "v1", 2)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestListDocuments_OwnerScoping(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.InsertDocument(ctx, newDoc("doc-1", "owner-1")))
	require.NoError(t, store.InsertDocument(ctx, newDoc("doc-2", "owner-2")))

	docs, err := store.ListDocuments(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)

	all, err := store.ListDocuments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInsertSearchLog(t *testing.T) {
	store := NewStore()

	require.NoError(t, store.InsertSearchLog(context.Background(), &models.SearchLog{
		ID:    "log-1",
		Query: "payroll",
	}))
	assert.Equal(t, 1, store.SearchLogCount())
}
