package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/answer"
	"github.com/hr-assistant/backend/pkg/logger"
)

type WebSocketHandler struct {
	generator *answer.Generator
}

func NewWebSocketHandler(generator *answer.Generator) *WebSocketHandler {
	return &WebSocketHandler{generator: generator}
}

// HandleConnection serves one client session. Each "question" message is
// answered over the connection as a stream of word chunks followed by a
// complete frame carrying the sources.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Content string `json:"content"`
			OwnerID string `json:"owner_id"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "question" {
			continue
		}

		logger.Info("Processing WebSocket question", zap.String("query", msg.Content))

		if err := h.streamAnswer(c, msg.Content, msg.OwnerID); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			h.sendError(c, "Failed to answer question")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, query, ownerID string) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "Searching documents...")

	result, err := h.generator.Answer(ctx, query, answer.Scope{OwnerID: ownerID})
	if err != nil {
		return err
	}

	words := splitIntoWords(result.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, result)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, result *answer.GeneratedAnswer) error {
	sources := make([]map[string]interface{}, 0, len(result.Sources))
	for _, s := range result.Sources {
		sources = append(sources, map[string]interface{}{
			"document_id": s.DocumentID,
			"filename":    s.Filename,
			"score":       s.Score,
		})
	}

	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"sources":    sources,
		"grounded":   result.Grounded,
		"latency_ms": result.LatencyMS,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		words = append(words, fields...)
		words = append(words, "\n")
	}
	if len(words) > 0 {
		words = words[:len(words)-1]
	}
	return words
}
