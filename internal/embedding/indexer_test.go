package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hr-assistant/backend/internal/storage/memory"
	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/pkg/utils"
)

// fakeEmbedder returns a constant-dimension vector; texts containing
// "corrupt" fail.
type fakeEmbedder struct {
	dim   int
	calls int
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if strings.Contains(text, "corrupt") {
		return nil, errors.New("provider rejected input")
	}
	vector := make([]float32, f.dim)
	for i := range vector {
		vector[i] = float32(len(text) % 7)
	}
	return vector, nil
}

type fakeCache struct {
	entries map[string][]float32
}

func (f *fakeCache) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	vector, ok := f.entries[key]
	return vector, ok, nil
}

func (f *fakeCache) SetEmbedding(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	if f.entries == nil {
		f.entries = make(map[string][]float32)
	}
	f.entries[key] = vector
	return nil
}

func seedDocument(t *testing.T, store *memory.Store, id, content string) {
	t.Helper()
	now := time.Now()
	err := store.InsertDocument(context.Background(), &models.Document{
		ID:          id,
		OwnerID:     "owner-1",
		Filename:    id + ".txt",
		MimeType:    "text/plain",
		Content:     content,
		ContentHash: utils.ContentHash(content),
		Status:      models.StatusCompleted,
		UploadedAt:  now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
}

func TestEmbedDocument_ComputesAndPersists(t *testing.T) {
	store := memory.NewStore()
	embedder := &fakeEmbedder{dim: 8}
	indexer := NewIndexer(store, embedder, nil, "test-model", "v1", 8, 8000)

	seedDocument(t, store, "doc-1", "Annual review text.")

	status, err := indexer.EmbedDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, status)

	doc, err := store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc.Embedding)
	assert.Len(t, doc.Embedding.Vector, 8)
	assert.Equal(t, "test-model", doc.Embedding.Model)
	assert.Equal(t, "v1", doc.Embedding.Version)
	assert.Equal(t, doc.ContentHash, doc.Embedding.ContentHash)
	assert.False(t, doc.Embedding.ComputedAt.IsZero())
}

func TestEmbedDocument_Idempotent(t *testing.T) {
	store := memory.NewStore()
	embedder := &fakeEmbedder{dim: 8}
	indexer := NewIndexer(store, embedder, nil, "test-model", "v1", 8, 8000)

	seedDocument(t, store, "doc-1", "Some content.")

	status, err := indexer.EmbedDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, status)

	status, err = indexer.EmbedDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyCurrent, status)
	assert.Equal(t, 1, embedder.calls)
}

func TestEmbedDocument_RecomputesOnVersionBump(t *testing.T) {
	store := memory.NewStore()
	embedder := &fakeEmbedder{dim: 8}

	v1 := NewIndexer(store, embedder, nil, "test-model", "v1", 8, 8000)
	v2 := NewIndexer(store, embedder, nil, "test-model", "v2", 8, 8000)

	seedDocument(t, store, "doc-1", "Some content.")

	_, err := v1.EmbedDocument(context.Background(), "doc-1")
	require.NoError(t, err)

	status, err := v2.EmbedDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, status)

	doc, err := store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Embedding.Version)
}

func TestEmbedDocument_UnknownDocument(t *testing.T) {
	store := memory.NewStore()
	indexer := NewIndexer(store, &fakeEmbedder{dim: 8}, nil, "test-model", "v1", 8, 8000)

	_, err := indexer.EmbedDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEmbedDocument_EmptyContent(t *testing.T) {
	store := memory.NewStore()
	indexer := NewIndexer(store, &fakeEmbedder{dim: 8}, nil, "test-model", "v1", 8, 8000)

	seedDocument(t, store, "doc-1", "   ")

	_, err := indexer.EmbedDocument(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedDocument_DimensionMismatch(t *testing.T) {
	store := memory.NewStore()
	indexer := NewIndexer(store, &fakeEmbedder{dim: 4}, nil, "test-model", "v1", 8, 8000)

	seedDocument(t, store, "doc-1", "Some content.")

	_, err := indexer.EmbedDocument(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	doc, err := store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Nil(t, doc.Embedding)
}

func TestEmbedDocument_CacheHitSkipsProvider(t *testing.T) {
	store := memory.NewStore()
	embedder := &fakeEmbedder{dim: 8}
	cache := &fakeCache{}
	indexer := NewIndexer(store, embedder, cache, "test-model", "v1", 8, 8000)

	seedDocument(t, store, "doc-1", "Identical content.")
	seedDocument(t, store, "doc-2", "Identical content.")

	_, err := indexer.EmbedDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	_, err = indexer.EmbedDocument(context.Background(), "doc-2")
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls)
}

func TestBackfill_IsolatesItemFailures(t *testing.T) {
	store := memory.NewStore()
	indexer := NewIndexer(store, &fakeEmbedder{dim: 8}, nil, "test-model", "v1", 8, 8000)

	for i := 1; i <= 5; i++ {
		content := fmt.Sprintf("Document number %d.", i)
		if i == 3 {
			content = "corrupt payload"
		}
		seedDocument(t, store, fmt.Sprintf("doc-%d", i), content)
	}

	result, err := indexer.Backfill(context.Background(), "owner-1", 10)
	require.NoError(t, err)

	assert.Len(t, result.UpdatedIDs, 4)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "doc-3", result.Errors[0].DocumentID)
	assert.NotEmpty(t, result.Errors[0].Reason)

	// The failed document is untouched and remains a candidate.
	doc, err := store.GetDocument(context.Background(), "doc-3")
	require.NoError(t, err)
	assert.Nil(t, doc.Embedding)
}

func TestBackfill_SkipsCurrentDocuments(t *testing.T) {
	store := memory.NewStore()
	embedder := &fakeEmbedder{dim: 8}
	indexer := NewIndexer(store, embedder, nil, "test-model", "v1", 8, 8000)

	seedDocument(t, store, "doc-1", "First.")
	seedDocument(t, store, "doc-2", "Second.")

	_, err := indexer.EmbedDocument(context.Background(), "doc-1")
	require.NoError(t, err)

	result, err := indexer.Backfill(context.Background(), "owner-1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-2"}, result.UpdatedIDs)
	assert.Empty(t, result.Errors)
}

func TestBackfill_EmptyCandidateSet(t *testing.T) {
	store := memory.NewStore()
	indexer := NewIndexer(store, &fakeEmbedder{dim: 8}, nil, "test-model", "v1", 8, 8000)

	result, err := indexer.Backfill(context.Background(), "owner-1", 10)
	require.NoError(t, err)
	assert.Empty(t, result.UpdatedIDs)
	assert.Empty(t, result.Errors)
}

func TestBackfill_RespectsContextCancellation(t *testing.T) {
	store := memory.NewStore()
	indexer := NewIndexer(store, &fakeEmbedder{dim: 8}, nil, "test-model", "v1", 8, 8000)

	seedDocument(t, store, "doc-1", "First.")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := indexer.Backfill(ctx, "owner-1", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.UpdatedIDs)
}
