package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/pkg/logger"
	"github.com/anchorwatch/backend/pkg/utils"
)

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
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func vectorKey(kind, refID string) string {
	return fmt.Sprintf("vec:%s:%s", kind, utils.HashString(refID))
}

// SetVectors caches the vector set for one (kind, ref_id) pair.
func (c *Client) SetVectors(ctx context.Context, kind, refID string, vectors [][]float32, ttl time.Duration) error {
	data, err := json.Marshal(vectors)
	if err != nil {
		return fmt.Errorf("failed to marshal vectors: %w", err)
	}

	err = c.client.Set(ctx, vectorKey(kind, refID), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set vector cache: %w", err)
	}

	logger.Debug("Vectors cached", zap.String("kind", kind), zap.String("ref_id", refID))
	return nil
}

func (c *Client) GetVectors(ctx context.Context, kind, refID string) ([][]float32, bool, error) {
	data, err := c.client.Get(ctx, vectorKey(kind, refID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get vector cache: %w", err)
	}

	var vectors [][]float32
	err = json.Unmarshal(data, &vectors)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal vectors: %w", err)
	}

	logger.Debug("Vector cache hit", zap.String("kind", kind), zap.String("ref_id", refID))
	return vectors, true, nil
}

// InvalidateComponents drops all cached component vectors. Called on anchor
// edits so the next composition sees fresh embeddings.
func (c *Client) InvalidateComponents(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "vec:*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Component vector cache invalidated")
	return nil
}
