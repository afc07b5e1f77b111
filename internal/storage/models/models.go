package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by every store backend for unknown document ids.
var ErrNotFound = errors.New("document not found")

// Document lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Experience level labels. Classification never produces anything outside
// this set; anything unrecognized maps to ExperienceUnknown.
const (
	ExperienceJunior  = "junior"
	ExperienceMid     = "mid"
	ExperienceSenior  = "senior"
	ExperienceUnknown = "unknown"
)

// Sentiment labels, same closed-set rule as experience levels.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentUnknown  = "unknown"
)

type Document struct {
	ID          string
	OwnerID     string
	Filename    string
	MimeType    string
	Content     string
	ContentHash string
	Status      string
	ErrorReason string
	Analysis    *AnalysisResult
	Embedding   *EmbeddingRecord
	UploadedAt  time.Time
	UpdatedAt   time.Time
}

// AnalysisResult is the structured knowledge extracted from one document.
// Failures records sub-extractions that were requested but could not run;
// their fields stay empty.
type AnalysisResult struct {
	Summary         string
	Keywords        []string
	Skills          []string
	ExperienceLevel string
	Sentiment       string
	Contact         ContactInfo
	Failures        map[string]string
	AnalyzedAt      time.Time
}

type ContactInfo struct {
	Name  string
	Email string
	Phone string
	Links []string
}

// EmbeddingRecord is written as one unit: a document either has all of these
// fields or none of them.
type EmbeddingRecord struct {
	Vector      []float32
	Model       string
	Version     string
	ContentHash string
	ComputedAt  time.Time
}

// Stale reports whether the record no longer matches the configured version
// or the document content it was computed from.
func (r *EmbeddingRecord) Stale(currentVersion, contentHash string) bool {
	if r == nil {
		return true
	}
	return r.Version != currentVersion || r.ContentHash != contentHash
}

// SearchLog records one retrieval call for later inspection.
type SearchLog struct {
	ID          string
	OwnerID     string
	Query       string
	Filters     map[string]string
	ResultCount int
	LatencyMS   int
	CreatedAt   time.Time
}
