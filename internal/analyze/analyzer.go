package analyze

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/llm"
	"github.com/hr-assistant/backend/internal/metrics"
	"github.com/hr-assistant/backend/internal/storage/models"
	"github.com/hr-assistant/backend/pkg/logger"
	"github.com/hr-assistant/backend/pkg/utils"
)

// ErrAnalysisFailed is returned when the input text is empty or every
// requested sub-extraction failed. A single failing extractor never aborts
// its siblings; it is recorded in the result instead.
var ErrAnalysisFailed = errors.New("analysis failed")

// LanguageModel is the model-backed extraction collaborator.
type LanguageModel interface {
	Summarize(ctx context.Context, content string) (string, error)
	ExtractKeywords(ctx context.Context, content string) ([]string, error)
	ExtractSkills(ctx context.Context, content string) ([]string, error)
	ClassifyExperience(ctx context.Context, content string) (string, error)
	AnalyzeSentiment(ctx context.Context, content string) (string, error)
	ExtractContact(ctx context.Context, content string) (*llm.ContactExtraction, error)
}

// Options toggles individual sub-extractions. A disabled sub-extraction
// yields an empty field, never an error.
type Options struct {
	GenerateSummary    bool
	ExtractKeywords    bool
	ExtractSkills      bool
	ClassifyExperience bool
	AnalyzeSentiment   bool
	ExtractContactInfo bool
}

func DefaultOptions() Options {
	return Options{
		GenerateSummary:    true,
		ExtractKeywords:    true,
		ExtractSkills:      true,
		ClassifyExperience: true,
		AnalyzeSentiment:   true,
		ExtractContactInfo: true,
	}
}

func (o Options) anyEnabled() bool {
	return o.GenerateSummary || o.ExtractKeywords || o.ExtractSkills ||
		o.ClassifyExperience || o.AnalyzeSentiment || o.ExtractContactInfo
}

type Analyzer struct {
	model       LanguageModel
	charCap     int
	seniorYears int
	midYears    int
}

const maxSummaryLength = 1200

func NewAnalyzer(model LanguageModel, charCap, seniorYears, midYears int) *Analyzer {
	if charCap <= 0 {
		charCap = 8000
	}
	if seniorYears <= 0 {
		seniorYears = 6
	}
	if midYears <= 0 {
		midYears = 2
	}
	return &Analyzer{
		model:       model,
		charCap:     charCap,
		seniorYears: seniorYears,
		midYears:    midYears,
	}
}

// Analyze fans the enabled sub-extractions out over the same text and joins
// their results. Each runs independently; a failure is recorded under its
// name in Failures and the corresponding field stays empty.
func (a *Analyzer) Analyze(ctx context.Context, text, filename string, opts Options) (*models.AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text for %q", ErrAnalysisFailed, filename)
	}

	capped := utils.TruncateText(text, a.charCap)

	result := &models.AnalysisResult{
		ExperienceLevel: models.ExperienceUnknown,
		Sentiment:       models.SentimentUnknown,
		Failures:        make(map[string]string),
		AnalyzedAt:      time.Now(),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	requested := 0

	run := func(name string, enabled bool, fn func() error) {
		if !enabled {
			return
		}
		requested++
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				metrics.SubExtractionFailures.WithLabelValues(name).Inc()
				logger.Warn("Sub-extraction failed",
					zap.String("extraction", name),
					zap.String("filename", filename),
					zap.Error(err),
				)
				mu.Lock()
				result.Failures[name] = err.Error()
				mu.Unlock()
			}
		}()
	}

	run("summary", opts.GenerateSummary, func() error {
		summary, err := a.model.Summarize(ctx, capped)
		if err != nil {
			return err
		}
		if len(summary) > maxSummaryLength {
			summary = summary[:maxSummaryLength]
		}
		mu.Lock()
		result.Summary = summary
		mu.Unlock()
		return nil
	})

	run("keywords", opts.ExtractKeywords, func() error {
		keywords, err := a.extractKeywords(ctx, capped)
		if err != nil {
			return err
		}
		mu.Lock()
		result.Keywords = keywords
		mu.Unlock()
		return nil
	})

	run("skills", opts.ExtractSkills, func() error {
		skills, err := a.extractSkills(ctx, capped)
		if err != nil {
			return err
		}
		mu.Lock()
		result.Skills = skills
		mu.Unlock()
		return nil
	})

	run("experience", opts.ClassifyExperience, func() error {
		level, err := a.classifyExperience(ctx, capped)
		if err != nil {
			return err
		}
		mu.Lock()
		result.ExperienceLevel = level
		mu.Unlock()
		return nil
	})

	run("sentiment", opts.AnalyzeSentiment, func() error {
		label, err := a.model.AnalyzeSentiment(ctx, capped)
		if err != nil {
			return err
		}
		mu.Lock()
		result.Sentiment = clampSentiment(label)
		mu.Unlock()
		return nil
	})

	run("contact", opts.ExtractContactInfo, func() error {
		contact, err := a.extractContact(ctx, capped)
		if err != nil {
			return err
		}
		mu.Lock()
		result.Contact = *contact
		mu.Unlock()
		return nil
	})

	wg.Wait()

	if requested > 0 && len(result.Failures) == requested {
		return nil, fmt.Errorf("%w: all %d requested sub-extractions failed for %q",
			ErrAnalysisFailed, requested, filename)
	}

	if !opts.anyEnabled() {
		logger.Debug("Analysis called with no sub-extractions enabled", zap.String("filename", filename))
	}

	return result, nil
}

// extractKeywords prefers the model; when it fails, frequent noun tokens
// stand in so keyword search still works.
func (a *Analyzer) extractKeywords(ctx context.Context, text string) ([]string, error) {
	keywords, err := a.model.ExtractKeywords(ctx, text)
	if err == nil && len(keywords) > 0 {
		return dedupe(keywords), nil
	}

	fallback := nounKeywords(text, 15)
	if len(fallback) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, errors.New("no keywords found")
	}

	logger.Debug("Keyword extraction fell back to noun tokens", zap.Int("count", len(fallback)))
	return fallback, nil
}

func (a *Analyzer) extractSkills(ctx context.Context, text string) ([]string, error) {
	skills, err := a.model.ExtractSkills(ctx, text)
	if err == nil {
		return dedupe(skills), nil
	}

	fallback := lexiconSkills(text)
	if len(fallback) == 0 {
		return nil, err
	}

	return fallback, nil
}

// classifyExperience buckets an explicit years-of-experience mention when
// present; otherwise the model's label is used, clamped to the closed set.
func (a *Analyzer) classifyExperience(ctx context.Context, text string) (string, error) {
	if years, ok := yearsOfExperience(text); ok {
		switch {
		case years >= a.seniorYears:
			return models.ExperienceSenior, nil
		case years >= a.midYears:
			return models.ExperienceMid, nil
		default:
			return models.ExperienceJunior, nil
		}
	}

	label, err := a.model.ClassifyExperience(ctx, text)
	if err != nil {
		return "", err
	}
	return clampExperience(label), nil
}

// extractContact merges the pattern, NER and model paths. Pattern-matched
// email and phone win on conflict; the model fills what the patterns missed.
func (a *Analyzer) extractContact(ctx context.Context, text string) (*models.ContactInfo, error) {
	contact := &models.ContactInfo{}

	if email := emailPattern.FindString(text); email != "" {
		contact.Email = email
	}
	if phone := phonePattern.FindString(text); phone != "" {
		contact.Phone = strings.TrimSpace(phone)
	}
	if name := personName(text); name != "" {
		contact.Name = name
	}
	contact.Links = dedupe(urlPattern.FindAllString(text, 5))

	modelContact, err := a.model.ExtractContact(ctx, text)
	if err != nil {
		if contact.Email == "" && contact.Phone == "" && contact.Name == "" && len(contact.Links) == 0 {
			return nil, err
		}
		logger.Debug("Model contact extraction failed, keeping pattern matches", zap.Error(err))
		return contact, nil
	}

	if contact.Email == "" {
		contact.Email = modelContact.Email
	}
	if contact.Phone == "" {
		contact.Phone = modelContact.Phone
	}
	if contact.Name == "" {
		contact.Name = modelContact.Name
	}
	contact.Links = dedupe(append(contact.Links, modelContact.Links...))

	return contact, nil
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"')]+`)
	yearsPattern = regexp.MustCompile(`(?i)(\d{1,2})\+?\s*(?:years?|yrs?)`)
)

func yearsOfExperience(text string) (int, bool) {
	matches := yearsPattern.FindAllStringSubmatch(text, -1)
	best := -1
	for _, m := range matches {
		years, err := strconv.Atoi(m[1])
		if err != nil || years > 60 {
			continue
		}
		if years > best {
			best = years
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// personName returns the first PERSON entity prose finds, if any.
func personName(text string) string {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return ""
	}
	for _, ent := range doc.Entities() {
		if ent.Label == "PERSON" {
			return ent.Text
		}
	}
	return ""
}

// nounKeywords ranks noun tokens by frequency.
func nounKeywords(text string, limit int) []string {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil
	}

	freq := make(map[string]int)
	casing := make(map[string]string)
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") {
			continue
		}
		word := strings.Trim(tok.Text, ".,;:!?()[]")
		if len(word) < 3 {
			continue
		}
		key := strings.ToLower(word)
		freq[key]++
		if _, ok := casing[key]; !ok {
			casing[key] = word
		}
	}

	keys := make([]string, 0, len(freq))
	for key := range freq {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] == freq[keys[j]] {
			return keys[i] < keys[j]
		}
		return freq[keys[i]] > freq[keys[j]]
	})

	if len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = casing[key]
	}
	return out
}

// baselineSkills is checked when the model path is unavailable. Word-boundary
// matched, case-insensitive.
var baselineSkills = []string{
	"React", "Angular", "Vue", "JavaScript", "TypeScript", "Python", "Java",
	"Go", "Ruby", "C++", "SQL", "PostgreSQL", "MySQL", "MongoDB", "Redis",
	"AWS", "Azure", "GCP", "Docker", "Kubernetes", "Terraform", "Git",
	"Excel", "Agile", "Scrum", "Kanban", "recruiting", "onboarding",
	"payroll", "project management", "leadership", "communication",
}

func lexiconSkills(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, skill := range baselineSkills {
		pattern := `(?i)\b` + regexp.QuoteMeta(strings.ToLower(skill)) + `\b`
		if matched, _ := regexp.MatchString(pattern, lower); matched {
			found = append(found, skill)
		}
	}
	return found
}

func clampExperience(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case models.ExperienceJunior:
		return models.ExperienceJunior
	case models.ExperienceMid:
		return models.ExperienceMid
	case models.ExperienceSenior:
		return models.ExperienceSenior
	default:
		return models.ExperienceUnknown
	}
}

func clampSentiment(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case models.SentimentPositive:
		return models.SentimentPositive
	case models.SentimentNeutral:
		return models.SentimentNeutral
	case models.SentimentNegative:
		return models.SentimentNegative
	default:
		return models.SentimentUnknown
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
