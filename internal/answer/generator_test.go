package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hr-assistant/backend/internal/retrieval"
	"github.com/hr-assistant/backend/internal/storage/models"
)

type fakeRetriever struct {
	result *retrieval.Result
	err    error
	lastQ  retrieval.Query
}

func (f *fakeRetriever) Search(ctx context.Context, q retrieval.Query) (*retrieval.Result, error) {
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeTextGenerator records its inputs and echoes a canned answer.
type fakeTextGenerator struct {
	answer           string
	err              error
	lastContextBlock string
	lastHasContext   bool
}

func (f *fakeTextGenerator) GenerateAnswer(ctx context.Context, query, contextBlock string, hasContext bool) (string, error) {
	f.lastContextBlock = contextBlock
	f.lastHasContext = hasContext
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func matchFor(id, filename, content string, score float64) retrieval.Match {
	return retrieval.Match{
		Document: &models.Document{
			ID:         id,
			Filename:   filename,
			Content:    content,
			Status:     models.StatusCompleted,
			UploadedAt: time.Now(),
			UpdatedAt:  time.Now(),
		},
		Score: score,
	}
}

func TestAnswer_GroundedWithSources(t *testing.T) {
	retriever := &fakeRetriever{
		result: &retrieval.Result{
			Matches: []retrieval.Match{
				matchFor("doc-1", "handbook.pdf", "Parental leave is 16 weeks.", 0.9),
				matchFor("doc-2", "faq.txt", "Leave requests go through the portal.", 0.7),
			},
			Total: 2,
		},
	}
	model := &fakeTextGenerator{answer: "Parental leave is 16 weeks."}
	generator := NewGenerator(retriever, model, 5, 600)

	result, err := generator.Answer(context.Background(), "How long is parental leave?", Scope{OwnerID: "owner-1"})
	require.NoError(t, err)

	assert.True(t, result.Grounded)
	assert.Equal(t, "Parental leave is 16 weeks.", result.Answer)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "doc-1", result.Sources[0].DocumentID)
	assert.Equal(t, "handbook.pdf", result.Sources[0].Filename)
	assert.NotEmpty(t, result.Sources[0].Excerpt)

	assert.True(t, model.lastHasContext)
	assert.Contains(t, model.lastContextBlock, "[source 1] handbook.pdf")
	assert.Contains(t, model.lastContextBlock, "[source 2] faq.txt")

	// Retrieval was scoped to the caller.
	assert.Equal(t, "owner-1", retriever.lastQ.OwnerID)
	assert.Equal(t, 5, retriever.lastQ.Limit)
}

func TestAnswer_NoResultsIsUngrounded(t *testing.T) {
	retriever := &fakeRetriever{result: &retrieval.Result{}}
	model := &fakeTextGenerator{answer: "I have no documents about that."}
	generator := NewGenerator(retriever, model, 5, 600)

	result, err := generator.Answer(context.Background(), "Anything about sabbaticals?", Scope{})
	require.NoError(t, err)

	assert.False(t, result.Grounded)
	assert.Empty(t, result.Sources)
	assert.False(t, model.lastHasContext)
	assert.Contains(t, model.lastContextBlock, "No supporting context was found.")
}

func TestAnswer_RetrievalFailureStillAnswers(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("store offline")}
	model := &fakeTextGenerator{answer: "I cannot access documents right now."}
	generator := NewGenerator(retriever, model, 5, 600)

	result, err := generator.Answer(context.Background(), "any question", Scope{})
	require.NoError(t, err)

	assert.False(t, result.Grounded)
	assert.Empty(t, result.Sources)
}

func TestAnswer_GenerationFailure(t *testing.T) {
	retriever := &fakeRetriever{result: &retrieval.Result{}}
	model := &fakeTextGenerator{err: errors.New("model overloaded")}
	generator := NewGenerator(retriever, model, 5, 600)

	_, err := generator.Answer(context.Background(), "any question", Scope{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestAnswer_ExcerptsAreCapped(t *testing.T) {
	long := strings.Repeat("x", 5000)
	retriever := &fakeRetriever{
		result: &retrieval.Result{
			Matches: []retrieval.Match{matchFor("doc-1", "big.txt", long, 0.5)},
			Total:   1,
		},
	}
	model := &fakeTextGenerator{answer: "ok"}
	generator := NewGenerator(retriever, model, 5, 600)

	result, err := generator.Answer(context.Background(), "q", Scope{})
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	assert.LessOrEqual(t, len(result.Sources[0].Excerpt), 600)
}

func TestAnswer_TopKCapsSources(t *testing.T) {
	matches := []retrieval.Match{
		matchFor("doc-1", "a.txt", "one", 0.9),
		matchFor("doc-2", "b.txt", "two", 0.8),
		matchFor("doc-3", "c.txt", "three", 0.7),
	}
	retriever := &fakeRetriever{result: &retrieval.Result{Matches: matches, Total: 3}}
	model := &fakeTextGenerator{answer: "ok"}
	generator := NewGenerator(retriever, model, 2, 600)

	result, err := generator.Answer(context.Background(), "q", Scope{})
	require.NoError(t, err)
	assert.Len(t, result.Sources, 2)
}

func TestAnswer_SummaryPrependedToExcerpt(t *testing.T) {
	match := matchFor("doc-1", "resume.pdf", "Full resume body text.", 0.9)
	match.Document.Analysis = &models.AnalysisResult{Summary: "Senior engineer, ten years."}

	retriever := &fakeRetriever{result: &retrieval.Result{Matches: []retrieval.Match{match}, Total: 1}}
	model := &fakeTextGenerator{answer: "ok"}
	generator := NewGenerator(retriever, model, 5, 600)

	result, err := generator.Answer(context.Background(), "q", Scope{})
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	assert.True(t, strings.HasPrefix(result.Sources[0].Excerpt, "Senior engineer, ten years."))
}
