package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightkind/clinic-platform/pkg/logging"
)

const (
	listCacheKey = "kb:articles"
	listCacheTTL = 5 * time.Minute
)

// CachedRepository wraps a Repository with a Redis cache over the article
// list, which is read on nearly every portal page load. Mutations write
// through and invalidate. A cache failure degrades to the backing store.
type CachedRepository struct {
	inner  Repository
	redis  *redis.Client
	logger *logging.Logger
}

var _ Repository = (*CachedRepository)(nil)

func NewCachedRepository(inner Repository, redisClient *redis.Client, logger *logging.Logger) *CachedRepository {
	if inner == nil {
		panic("kb: inner repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRepository{inner: inner, redis: redisClient, logger: logger}
}

func (r *CachedRepository) Put(ctx context.Context, a *Article) error {
	if err := r.inner.Put(ctx, a); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedRepository) GetByID(ctx context.Context, id string) (*Article, error) {
	return r.inner.GetByID(ctx, id)
}

func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedRepository) List(ctx context.Context) ([]Article, error) {
	if r.redis != nil {
		data, err := r.redis.Get(ctx, listCacheKey).Bytes()
		if err == nil {
			var out []Article
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
			// A corrupt entry falls through to the store and gets rewritten.
			r.logger.Warn("discarding corrupt knowledge base cache entry")
		} else if err != redis.Nil {
			r.logger.Warn("knowledge base cache read failed", "error", err)
		}
	}

	out, err := r.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	if r.redis != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := r.redis.Set(ctx, listCacheKey, data, listCacheTTL).Err(); err != nil {
				r.logger.Warn("knowledge base cache write failed", "error", err)
			}
		}
	}
	return out, nil
}

func (r *CachedRepository) invalidate(ctx context.Context) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Del(ctx, listCacheKey).Err(); err != nil {
		r.logger.Warn("knowledge base cache invalidation failed", "error", err)
	}
}

// warm is a test hook that reports whether the list is currently cached.
func (r *CachedRepository) warm(ctx context.Context) (bool, error) {
	if r.redis == nil {
		return false, nil
	}
	n, err := r.redis.Exists(ctx, listCacheKey).Result()
	if err != nil {
		return false, fmt.Errorf("kb: cache probe: %w", err)
	}
	return n > 0, nil
}
