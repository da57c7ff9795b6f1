package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"fabula-server/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedGeneration - закешированный результат генерации вместе с фактическим
// usage провайдера. Usage хранится для отчетности; повторная выдача из кеша
// пользователю ничего не стоит.
type CachedGeneration struct {
	Content          string    `json:"content"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

// GenerationCache - кеш результатов генерации по содержимому запроса.
type GenerationCache interface {
	// Get возвращает закешированную генерацию или models.ErrNotFound.
	Get(ctx context.Context, storyCtx models.StoryContext, chapter int) (*CachedGeneration, error)
	// Set сохраняет генерацию с TTL кеша.
	Set(ctx context.Context, storyCtx models.StoryContext, chapter int, gen *CachedGeneration) error
}

// Compile-time check to ensure redisGenerationCache implements GenerationCache
var _ GenerationCache = (*redisGenerationCache)(nil)

type redisGenerationCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGenerationCache создает кеш генераций поверх Redis.
func NewRedisGenerationCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) GenerationCache {
	return &redisGenerationCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("GenerationCache"),
	}
}

// generationKey строит стабильный ключ кеша из идентичности истории и номера
// главы. Хешируются только поля, определяющие текст: одинаковая история с
// одинаковой главой обязана попадать в один ключ.
func generationKey(storyCtx models.StoryContext, chapter int) string {
	payload := fmt.Sprintf("%s|%s|%s|%d", storyCtx.Title, storyCtx.Genre, storyCtx.Premise, chapter)
	hash := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("generation:%s", hex.EncodeToString(hash[:]))
}

func (c *redisGenerationCache) Get(ctx context.Context, storyCtx models.StoryContext, chapter int) (*CachedGeneration, error) {
	key := generationKey(storyCtx, chapter)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			c.logger.Debug("Generation cache miss", zap.String("key", key))
			return nil, models.ErrNotFound
		}
		c.logger.Error("Failed to get generation from redis", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("failed to get generation from redis: %w", err)
	}

	var gen CachedGeneration
	if err := json.Unmarshal(data, &gen); err != nil {
		// Поврежденная запись: ведем себя как при промахе, ключ перезапишется.
		c.logger.Error("Corrupted generation cache entry", zap.Error(err), zap.String("key", key))
		return nil, models.ErrNotFound
	}

	c.logger.Debug("Generation cache hit", zap.String("key", key), zap.String("model", gen.Model))
	return &gen, nil
}

func (c *redisGenerationCache) Set(ctx context.Context, storyCtx models.StoryContext, chapter int, gen *CachedGeneration) error {
	key := generationKey(storyCtx, chapter)
	data, err := json.Marshal(gen)
	if err != nil {
		return fmt.Errorf("failed to marshal generation for cache: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("Failed to set generation in redis", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to set generation in redis: %w", err)
	}

	c.logger.Debug("Generation cached",
		zap.String("key", key),
		zap.Duration("ttl", c.ttl),
	)
	return nil
}
