package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/utils"
)

// SearchCache holds rendered search responses. Entries are versioned: an
// invalidation bumps the version counter, orphaning every cached entry at
// once, and TTLs reclaim the space.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte)
	// InvalidateSearch drops all cached responses. The partner id is carried
	// for logging; versioning is process-global.
	InvalidateSearch(ctx context.Context, partnerID uuid.UUID)
	Close() error
}

type searchCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

const searchVersionKey = "search:version"

func NewSearchCache(log *logger.Logger) (SearchCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttlSec := utils.GetEnvAsInt("SEARCH_CACHE_TTL_SECONDS", 300, log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &searchCache{
		log: log.With("service", "SearchCache"),
		rdb: rdb,
		ttl: time.Duration(ttlSec) * time.Second,
	}, nil
}

func (c *searchCache) versionedKey(ctx context.Context, key string) (string, error) {
	version, err := c.rdb.Get(ctx, searchVersionKey).Int64()
	if err != nil && err != goredis.Nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("search:v%d:%s", version, hex.EncodeToString(sum[:16])), nil
}

func (c *searchCache) Get(ctx context.Context, key string) ([]byte, bool) {
	vk, err := c.versionedKey(ctx, key)
	if err != nil {
		c.log.Warn("search cache unavailable", "error", err)
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, vk).Bytes()
	if err == goredis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("search cache read failed", "error", err)
		return nil, false
	}
	return payload, true
}

func (c *searchCache) Set(ctx context.Context, key string, payload []byte) {
	vk, err := c.versionedKey(ctx, key)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, vk, payload, c.ttl).Err(); err != nil {
		c.log.Warn("search cache write failed", "error", err)
	}
}

func (c *searchCache) InvalidateSearch(ctx context.Context, partnerID uuid.UUID) {
	// A canceled request context must not block invalidation after commit.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := c.rdb.Incr(ctx, searchVersionKey).Err(); err != nil {
		c.log.Warn("search cache invalidation failed", "partner_id", partnerID, "error", err)
		return
	}
	c.log.Info("search cache invalidated", "partner_id", partnerID)
}

func (c *searchCache) Close() error {
	return c.rdb.Close()
}
