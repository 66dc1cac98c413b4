package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/m-mizutani/aiguide/pkg/interfaces"
	"github.com/m-mizutani/aiguide/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/rueidis"
)

const defaultEmbeddingCacheTTL = 7 * 24 * time.Hour

// RedisConfig holds connection parameters for Redis
type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// NewRedis creates a rueidis client without client side caching
func NewRedis(cfg RedisConfig) (rueidis.Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, goerr.New("redis address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create redis client", goerr.V("addrs", cfg.Addrs))
	}
	return client, nil
}

// EmbeddingCache is an interfaces.Embedder that memoizes vectors of another Embedder in Redis.
// Redis failures are logged and fall through to the underlying embedder.
type EmbeddingCache struct {
	client    rueidis.Client
	embedder  interfaces.Embedder
	namespace string
	ttl       time.Duration
}

var _ interfaces.Embedder = (*EmbeddingCache)(nil)

type EmbeddingCacheOption func(*EmbeddingCache)

// WithCacheNamespace separates vectors of different embedding models
func WithCacheNamespace(ns string) EmbeddingCacheOption {
	return func(c *EmbeddingCache) {
		c.namespace = ns
	}
}

func WithCacheTTL(ttl time.Duration) EmbeddingCacheOption {
	return func(c *EmbeddingCache) {
		c.ttl = ttl
	}
}

func NewEmbeddingCache(client rueidis.Client, embedder interfaces.Embedder, opts ...EmbeddingCacheOption) *EmbeddingCache {
	c := &EmbeddingCache{
		client:    client,
		embedder:  embedder,
		namespace: "default",
		ttl:       defaultEmbeddingCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "aiguide:embedding:" + c.namespace + ":" + hex.EncodeToString(sum[:])
}

// Embed implements interfaces.Embedder
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	logger := logging.From(ctx)
	key := c.key(text)

	cached, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
	switch {
	case err == nil && cached != "":
		return rueidis.ToVector32(cached), nil
	case err != nil && !rueidis.IsRedisNil(err):
		logger.Warn("failed to read embedding cache", "error", err, "key", key)
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	cmd := c.client.B().Set().Key(key).Value(rueidis.VectorString32(vec)).Ex(c.ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		logger.Warn("failed to write embedding cache", "error", err, "key", key)
	}

	return vec, nil
}
