package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/pkg/circuitbreaker"
	"github.com/hr-assistant/backend/pkg/logger"
	"github.com/hr-assistant/backend/pkg/retry"
)

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		timeout:        time.Duration(timeoutSec) * time.Second,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)

			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding response was empty")
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return embedding, nil
}

func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	systemPrompt := `You are an HR document analyst. Generate a concise 2-3 sentence summary of the given document.
Focus on:
- Who or what the document is about
- Key qualifications, roles or decisions it contains
- Anything time-sensitive

Be specific and factual.`

	userPrompt := fmt.Sprintf("Summarize this document:\n\n%s", content)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    300,
	})

	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

func (c *Client) ExtractKeywords(ctx context.Context, content string) ([]string, error) {
	systemPrompt := `You are an HR document analyst. Extract the most important keywords and phrases from the document.
Return a JSON array of strings, at most 15 entries, no other text. Example: ["project management", "Python", "remote work"]`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   content,
		Temperature:  0.1,
		MaxTokens:    400,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract keywords: %w", err)
	}

	return parseStringArray(resp.Content)
}

func (c *Client) ExtractSkills(ctx context.Context, content string) ([]string, error) {
	systemPrompt := `You are an HR document analyst. Extract professional skills mentioned in the document: technologies, tools, languages, methodologies and soft skills.
Return a JSON array of strings, no other text. Example: ["React", "SQL", "team leadership"]`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   content,
		Temperature:  0.1,
		MaxTokens:    400,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract skills: %w", err)
	}

	return parseStringArray(resp.Content)
}

// ClassifyExperience asks for one of the fixed labels. Callers clamp the
// result to the closed set; anything else becomes "unknown".
func (c *Client) ClassifyExperience(ctx context.Context, content string) (string, error) {
	systemPrompt := `You classify professional experience level from HR documents.
Answer with exactly one word: junior, mid, senior or unknown. No other text.`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   content,
		Temperature:  0.0,
		MaxTokens:    10,
	})
	if err != nil {
		return "", fmt.Errorf("failed to classify experience: %w", err)
	}

	return strings.ToLower(strings.TrimSpace(resp.Content)), nil
}

func (c *Client) AnalyzeSentiment(ctx context.Context, content string) (string, error) {
	systemPrompt := `You judge the overall tone of HR documents.
Answer with exactly one word: positive, neutral or negative. No other text.`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   content,
		Temperature:  0.0,
		MaxTokens:    10,
	})
	if err != nil {
		return "", fmt.Errorf("failed to analyze sentiment: %w", err)
	}

	return strings.ToLower(strings.TrimSpace(resp.Content)), nil
}

type ContactExtraction struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Phone string   `json:"phone"`
	Links []string `json:"links"`
}

func (c *Client) ExtractContact(ctx context.Context, content string) (*ContactExtraction, error) {
	systemPrompt := `You extract contact information from HR documents.
Return JSON only: {"name": "", "email": "", "phone": "", "links": []}
Leave fields empty when not present. Never invent values.`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   content,
		Temperature:  0.0,
		MaxTokens:    200,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract contact info: %w", err)
	}

	var contact ContactExtraction
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &contact); err != nil {
		return nil, fmt.Errorf("failed to parse contact extraction: %w", err)
	}

	return &contact, nil
}

// GenerateAnswer produces a grounded response. When hasContext is false the
// prompt instructs the model to say no supporting documents were found
// instead of guessing.
func (c *Client) GenerateAnswer(ctx context.Context, query, contextBlock string, hasContext bool) (string, error) {
	systemPrompt := `You are an HR assistant answering questions about a document collection.

Your responses must:
1. Be based ONLY on the provided context
2. Cite sources using [source N] notation
3. Acknowledge when the context does not cover the question
4. Never invent names, dates or figures

Be concise and factual.`

	var userPrompt string
	if hasContext {
		userPrompt = fmt.Sprintf("Question: %s\n\nContext:\n%s\n\nAnswer using only the context above.", query, contextBlock)
	} else {
		userPrompt = fmt.Sprintf("Question: %s\n\nNo supporting documents were found for this question. Say so explicitly and do not speculate.", query)
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.2,
		MaxTokens:    1024,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	return resp.Content, nil
}

// parseStringArray reads a JSON string array out of a completion, tolerating
// a markdown code fence around it.
func parseStringArray(content string) ([]string, error) {
	cleaned := stripCodeFence(content)

	var items []string
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, fmt.Errorf("failed to parse string array: %w", err)
	}

	out := items[:0]
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
