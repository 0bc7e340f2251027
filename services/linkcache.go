package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// linkCacheMargin keeps cached links from outliving their signature: a
// cache entry always expires before the presigned URL it holds.
const linkCacheMargin = 5 * time.Minute

// LinkCache memoizes presigned URLs in Redis so repeated polls for the
// same artifact do not re-sign on every request. All failures degrade to
// a cache miss; the link is simply generated fresh.
type LinkCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewLinkCache(rdb *redis.Client, logger *zap.Logger) *LinkCache {
	return &LinkCache{rdb: rdb, logger: logger}
}

func (c *LinkCache) Get(ctx context.Context, bucket, key string) (string, bool) {
	link, err := c.rdb.Get(ctx, cacheKey(bucket, key)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("link cache read failed", zap.Error(err))
		return "", false
	}
	return link, true
}

func (c *LinkCache) Put(ctx context.Context, bucket, key, link string, expiry time.Duration) {
	ttl := expiry - linkCacheMargin
	if ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(bucket, key), link, ttl).Err(); err != nil {
		c.logger.Warn("link cache write failed", zap.Error(err))
	}
}

func cacheKey(bucket, key string) string {
	return fmt.Sprintf("presign:%s:%s", bucket, key)
}
