package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

const defaultTTL = 10 * time.Minute

// Client is the subset of go-redis the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Open parses a redis:// URL and checks connectivity.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Cache stores JSON values under a key prefix. Cache failures are logged and
// treated as misses so callers never fail because of the cache.
type Cache struct {
	client Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func New(client Client, prefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache_get_failed", zap.String("key", c.prefix+key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Debug("cache_entry_invalid", zap.String("key", c.prefix+key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache_marshal_failed", zap.String("key", c.prefix+key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache_set_failed", zap.String("key", c.prefix+key), zap.Error(err))
	}
}

func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// CachedEmbedder memoizes query embeddings keyed by model and text.
type CachedEmbedder struct {
	inner ports.Embedder
	cache *Cache
	model string
}

func NewCachedEmbedder(inner ports.Embedder, cache *Cache, model string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, model: model}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.Embed(ctx, texts)
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := "embed:" + hashKey(e.model, text)
	var vec []float32
	if e.cache.GetJSON(ctx, key, &vec) && len(vec) > 0 {
		return vec, nil
	}
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.SetJSON(ctx, key, vec)
	return vec, nil
}

// CachedWebSearcher memoizes web search responses. Errors are not cached.
type CachedWebSearcher struct {
	inner ports.WebSearcher
	cache *Cache
}

func NewCachedWebSearcher(inner ports.WebSearcher, cache *Cache) *CachedWebSearcher {
	return &CachedWebSearcher{inner: inner, cache: cache}
}

func (s *CachedWebSearcher) Search(ctx context.Context, query string, maxResults int) (*domain.WebSearchResponse, error) {
	key := fmt.Sprintf("web:%d:%s", maxResults, hashKey(strings.ToLower(strings.TrimSpace(query))))
	var cached domain.WebSearchResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}
	resp, err := s.inner.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, key, resp)
	return resp, nil
}
