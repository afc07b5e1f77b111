package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/metrics"
	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/pkg/logger"
)

// Embedder produces the query-side vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Store is the read slice of the document store the engine needs.
type Store interface {
	ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error)
	InsertSearchLog(ctx context.Context, log *models.SearchLog) error
}

// Filters are structured constraints; all set fields must match (logical
// AND) for a document to be eligible.
type Filters struct {
	Skill           string
	Status          string
	MimeType        string
	ExperienceLevel string
	UploadedAfter   *time.Time
	UploadedBefore  *time.Time
}

type Query struct {
	Text    string
	Filters Filters
	OwnerID string
	Limit   int
}

// Signals is the per-document score breakdown.
type Signals struct {
	Lexical      float64
	Semantic     float64
	HasEmbedding bool
}

type Match struct {
	Document *models.Document
	Score    float64
	Signals  Signals
}

type Result struct {
	Matches []Match
	Total   int
}

type Engine struct {
	store          Store
	embedder       Embedder
	lexicalWeight  float64
	semanticWeight float64
}

const defaultLimit = 20

func NewEngine(store Store, embedder Embedder, lexicalWeight, semanticWeight float64) *Engine {
	if lexicalWeight <= 0 && semanticWeight <= 0 {
		lexicalWeight, semanticWeight = 0.4, 0.6
	}
	return &Engine{
		store:          store,
		embedder:       embedder,
		lexicalWeight:  lexicalWeight,
		semanticWeight: semanticWeight,
	}
}

// Search ranks filter-eligible documents by a weighted blend of lexical and
// semantic relevance. Documents without an embedding are scored on the
// lexical signal alone, never excluded. Ordering is deterministic for
// identical inputs and embedding state: ties break on most recent update,
// then id.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	docs, err := e.store.ListDocuments(ctx, q.OwnerID)
	if err != nil {
		metrics.SearchTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	queryTokens := tokenize(q.Text)

	var queryVector []float32
	if len(queryTokens) > 0 && e.embedder != nil {
		queryVector, err = e.embedder.GenerateEmbedding(ctx, q.Text)
		if err != nil {
			logger.Warn("Query embedding failed, scoring lexically only", zap.Error(err))
			queryVector = nil
		}
	}

	var matches []Match
	for _, doc := range docs {
		if !matchesFilters(doc, q.Filters) {
			continue
		}
		matches = append(matches, e.score(doc, queryTokens, queryVector))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		ti, tj := matches[i].Document.UpdatedAt, matches[j].Document.UpdatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return matches[i].Document.ID < matches[j].Document.ID
	})

	total := len(matches)
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	elapsed := time.Since(start)
	metrics.SearchDuration.Observe(elapsed.Seconds())
	metrics.SearchTotal.WithLabelValues("success").Inc()

	e.logSearch(ctx, q, total, elapsed)

	return &Result{Matches: matches, Total: total}, nil
}

func (e *Engine) score(doc *models.Document, queryTokens []string, queryVector []float32) Match {
	signals := Signals{}

	if len(queryTokens) > 0 {
		signals.Lexical = lexicalScore(doc, queryTokens)
	}

	if doc.Embedding != nil && len(doc.Embedding.Vector) > 0 {
		signals.HasEmbedding = true
		if queryVector != nil {
			cos := cosineSimilarity(queryVector, doc.Embedding.Vector)
			if cos > 0 {
				signals.Semantic = cos
			}
		}
	}

	var score float64
	if signals.HasEmbedding && queryVector != nil {
		score = e.lexicalWeight*signals.Lexical + e.semanticWeight*signals.Semantic
	} else {
		score = signals.Lexical
	}

	return Match{Document: doc, Score: score, Signals: signals}
}

// lexicalScore is the fraction of query tokens found in the document text or
// its extracted keywords/skills.
func lexicalScore(doc *models.Document, queryTokens []string) float64 {
	haystack := strings.ToLower(doc.Content)
	if doc.Analysis != nil {
		haystack += " " + strings.ToLower(strings.Join(doc.Analysis.Keywords, " "))
		haystack += " " + strings.ToLower(strings.Join(doc.Analysis.Skills, " "))
	}

	hits := 0
	for _, token := range queryTokens {
		if strings.Contains(haystack, token) {
			hits++
		}
	}

	return float64(hits) / float64(len(queryTokens))
}

func matchesFilters(doc *models.Document, f Filters) bool {
	if f.Status != "" && doc.Status != f.Status {
		return false
	}
	if f.MimeType != "" && doc.MimeType != f.MimeType {
		return false
	}
	if f.ExperienceLevel != "" {
		if doc.Analysis == nil || doc.Analysis.ExperienceLevel != f.ExperienceLevel {
			return false
		}
	}
	if f.Skill != "" {
		if doc.Analysis == nil || !containsFold(doc.Analysis.Skills, f.Skill) {
			return false
		}
	}
	if f.UploadedAfter != nil && doc.UploadedAt.Before(*f.UploadedAfter) {
		return false
	}
	if f.UploadedBefore != nil && doc.UploadedAt.After(*f.UploadedBefore) {
		return false
	}
	return true
}

func containsFold(items []string, target string) bool {
	for _, item := range items {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

func (e *Engine) logSearch(ctx context.Context, q Query, total int, elapsed time.Duration) {
	entry := &models.SearchLog{
		ID:          uuid.New().String(),
		OwnerID:     q.OwnerID,
		Query:       q.Text,
		Filters:     q.Filters.asMap(),
		ResultCount: total,
		LatencyMS:   int(elapsed.Milliseconds()),
		CreatedAt:   time.Now(),
	}

	if err := e.store.InsertSearchLog(ctx, entry); err != nil {
		logger.Warn("Failed to record search log", zap.Error(err))
	}
}

func (f Filters) asMap() map[string]string {
	m := make(map[string]string)
	if f.Skill != "" {
		m["skill"] = f.Skill
	}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.MimeType != "" {
		m["mime_type"] = f.MimeType
	}
	if f.ExperienceLevel != "" {
		m["experience_level"] = f.ExperienceLevel
	}
	if f.UploadedAfter != nil {
		m["uploaded_after"] = f.UploadedAfter.Format(time.RFC3339)
	}
	if f.UploadedBefore != nil {
		m["uploaded_before"] = f.UploadedBefore.Format(time.RFC3339)
	}
	return m
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"what": {}, "which": {}, "who": {}, "when": {}, "where": {}, "why": {},
	"how": {}, "about": {},
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if len(word) < 2 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
