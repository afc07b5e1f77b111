package answer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/metrics"
	"github.com/hr-assistant/backend/internal/retrieval"
	"github.com/hr-assistant/backend/pkg/logger"
	"github.com/hr-assistant/backend/pkg/utils"
)

// ErrGenerationFailed surfaces a generation-provider failure to the caller.
var ErrGenerationFailed = errors.New("generation failed")

// Retriever gathers supporting documents for a query.
type Retriever interface {
	Search(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// TextGenerator produces the final response from query plus context.
type TextGenerator interface {
	GenerateAnswer(ctx context.Context, query, contextBlock string, hasContext bool) (string, error)
}

// Scope constrains retrieval to the caller's documents.
type Scope struct {
	OwnerID string
}

type Source struct {
	DocumentID string
	Filename   string
	Score      float64
	Excerpt    string
}

// GeneratedAnswer is the grounded response. Grounded is false when no
// supporting documents were found; the answer then says so explicitly
// instead of speculating.
type GeneratedAnswer struct {
	Answer    string
	Sources   []Source
	Grounded  bool
	LatencyMS int
}

type Generator struct {
	retriever     Retriever
	model         TextGenerator
	topK          int
	excerptLength int
}

func NewGenerator(retriever Retriever, model TextGenerator, topK, excerptLength int) *Generator {
	if topK <= 0 {
		topK = 5
	}
	if excerptLength <= 0 {
		excerptLength = 600
	}
	return &Generator{
		retriever:     retriever,
		model:         model,
		topK:          topK,
		excerptLength: excerptLength,
	}
}

// Answer retrieves top-K supporting documents, assembles a bounded context
// block and generates a grounded response. The assembled context is
// ephemeral; it is rebuilt on every call. Zero retrieval results are not an
// error.
func (g *Generator) Answer(ctx context.Context, query string, scope Scope) (*GeneratedAnswer, error) {
	start := time.Now()

	result, err := g.retriever.Search(ctx, retrieval.Query{
		Text:    query,
		OwnerID: scope.OwnerID,
		Limit:   g.topK,
	})
	if err != nil {
		logger.Warn("Retrieval failed, answering without context", zap.Error(err))
		result = &retrieval.Result{}
	}

	sources, contextBlock := g.assembleContext(result)
	hasContext := len(sources) > 0

	response, err := g.model.GenerateAnswer(ctx, query, contextBlock, hasContext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	latency := int(time.Since(start).Milliseconds())

	metrics.AnswersTotal.WithLabelValues(strconv.FormatBool(hasContext)).Inc()

	logger.Info("Answer generated",
		zap.String("query", query),
		zap.Int("sources", len(sources)),
		zap.Bool("grounded", hasContext),
		zap.Int("latency_ms", latency),
	)

	return &GeneratedAnswer{
		Answer:    response,
		Sources:   sources,
		Grounded:  hasContext,
		LatencyMS: latency,
	}, nil
}

// assembleContext concatenates capped excerpts from the top matches into a
// numbered context block.
func (g *Generator) assembleContext(result *retrieval.Result) ([]Source, string) {
	var sources []Source
	var builder strings.Builder

	for i, match := range result.Matches {
		if i >= g.topK {
			break
		}

		excerpt := match.Document.Content
		if match.Document.Analysis != nil && match.Document.Analysis.Summary != "" {
			excerpt = match.Document.Analysis.Summary + "\n" + excerpt
		}
		excerpt = utils.TruncateText(excerpt, g.excerptLength)

		sources = append(sources, Source{
			DocumentID: match.Document.ID,
			Filename:   match.Document.Filename,
			Score:      match.Score,
			Excerpt:    excerpt,
		})

		builder.WriteString(fmt.Sprintf("[source %d] %s\n%s\n\n", i+1, match.Document.Filename, excerpt))
	}

	if len(sources) == 0 {
		return nil, "No supporting context was found."
	}

	return sources, builder.String()
}
