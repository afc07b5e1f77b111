package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hr-assistant/backend/internal/storage/models"
)

// Store is an in-memory document store used in tests and local development.
// All reads return copies so callers never observe a torn facet update.
type Store struct {
	mu         sync.RWMutex
	documents  map[string]*models.Document
	searchLogs []*models.SearchLog
}

func NewStore() *Store {
	return &Store{
		documents: make(map[string]*models.Document),
	}
}

func (s *Store) InsertDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[doc.ID] = copyDocument(doc)
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyDocument(doc), nil
}

func (s *Store) UpdateStatus(ctx context.Context, id, status, errorReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return models.ErrNotFound
	}
	doc.Status = status
	doc.ErrorReason = errorReason
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateAnalysis(ctx context.Context, id string, res *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return models.ErrNotFound
	}
	doc.Analysis = copyAnalysis(res)
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateEmbedding(ctx context.Context, id string, rec *models.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return models.ErrNotFound
	}
	doc.Embedding = copyEmbedding(rec)
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListEmbeddingCandidates(ctx context.Context, ownerID, currentVersion string, limit int) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*models.Document
	for _, doc := range s.documents {
		if doc.Status == models.StatusError {
			continue
		}
		if ownerID != "" && doc.OwnerID != ownerID {
			continue
		}
		if doc.Embedding.Stale(currentVersion, doc.ContentHash) {
			candidates = append(candidates, copyDocument(doc))
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].UpdatedAt.Equal(candidates[j].UpdatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*models.Document
	for _, doc := range s.documents {
		if doc.Status == models.StatusError {
			continue
		}
		if ownerID != "" && doc.OwnerID != ownerID {
			continue
		}
		docs = append(docs, copyDocument(doc))
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Store) InsertSearchLog(ctx context.Context, log *models.SearchLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.searchLogs = append(s.searchLogs, log)
	return nil
}

// AllDocuments returns every record including error-state ones. Test helper.
func (s *Store) AllDocuments() []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, copyDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// SearchLogCount is a test helper.
func (s *Store) SearchLogCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.searchLogs)
}

func (s *Store) Close() error {
	return nil
}

func copyDocument(doc *models.Document) *models.Document {
	cp := *doc
	cp.Analysis = copyAnalysis(doc.Analysis)
	cp.Embedding = copyEmbedding(doc.Embedding)
	return &cp
}

func copyAnalysis(res *models.AnalysisResult) *models.AnalysisResult {
	if res == nil {
		return nil
	}
	cp := *res
	cp.Keywords = append([]string(nil), res.Keywords...)
	cp.Skills = append([]string(nil), res.Skills...)
	cp.Contact.Links = append([]string(nil), res.Contact.Links...)
	if res.Failures != nil {
		cp.Failures = make(map[string]string, len(res.Failures))
		for k, v := range res.Failures {
			cp.Failures[k] = v
		}
	}
	return &cp
}

func copyEmbedding(rec *models.EmbeddingRecord) *models.EmbeddingRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	cp.Vector = append([]float32(nil), rec.Vector...)
	return &cp
}
