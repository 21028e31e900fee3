package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/documcp/api/internal/database"
	"github.com/documcp/api/internal/documents"
)

// ResultCache stores fully successful generation results in Redis, keyed by
// the request content. Identical descriptions asking for the same types skip
// the model entirely.
type ResultCache struct {
	rdb *database.Redis
	ttl time.Duration
}

// New creates a cache with the given TTL.
func New(rdb *database.Redis, ttl time.Duration) *ResultCache {
	return &ResultCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key from the request content. Types are part of the
// key in request order, so a different type selection misses.
func Key(req *documents.GenerationRequest) string {
	h := sha256.New()
	h.Write([]byte(req.InputText))
	h.Write([]byte{0})
	h.Write([]byte(req.ProjectName))
	for _, t := range req.Types {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	return "documcp:result:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for the request, or nil on a miss.
func (c *ResultCache) Get(ctx context.Context, req *documents.GenerationRequest) (*documents.GenerationResult, error) {
	payload, err := c.rdb.Client().Get(ctx, Key(req)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result documents.GenerationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Put stores a result. Only fully successful results are cached; partial
// failures must be retried by the caller, not replayed from cache.
func (c *ResultCache) Put(ctx context.Context, req *documents.GenerationRequest, result *documents.GenerationResult) error {
	if result.Status != documents.AllSucceeded {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.rdb.Client().Set(ctx, Key(req), payload, c.ttl).Err()
}
