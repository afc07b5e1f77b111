package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hr-assistant/backend/internal/metrics"
	"github.com/hr-assistant/backend/pkg/logger"
)

// Client caches embeddings keyed by content hash so identical content never
// hits the provider twice within the TTL.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis cache initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetEmbedding(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if err := c.client.Set(ctx, fmt.Sprintf("embedding:%s", key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("key", key))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("embedding:%s", key)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	metrics.CacheHits.WithLabelValues("embedding").Inc()
	return vector, true, nil
}
