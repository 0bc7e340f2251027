package services

import (
	"context"
	"testing"
	"time"

	"cadconvert/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testS3Config() *config.Config {
	return &config.Config{
		S3Region:       "us-east-1",
		AWSS3AccessKey: "test-key",
		AWSS3SecretKey: "test-secret",
	}
}

func TestPresignBuildsTimeLimitedURL(t *testing.T) {
	t.Parallel()

	svc := NewS3Service(testS3Config(), nil, zap.NewNop())

	link, err := svc.Presign(context.Background(), "models", "part.stl", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, link, "models")
	assert.Contains(t, link, "part.stl")
	assert.Contains(t, link, "X-Amz-Signature=")
	assert.Contains(t, link, "X-Amz-Expires=3600")
}

func TestUploadMissingFile(t *testing.T) {
	t.Parallel()

	svc := NewS3Service(testS3Config(), nil, zap.NewNop())

	err := svc.Upload(context.Background(), "/nonexistent/part.stl", "models", "")
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestPresignUsesCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewLinkCache(rdb, zap.NewNop())
	svc := NewS3Service(testS3Config(), cache, zap.NewNop())

	ctx := context.Background()
	first, err := svc.Presign(ctx, "models", "part.stl", time.Hour)
	require.NoError(t, err)

	second, err := svc.Presign(ctx, "models", "part.stl", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first, second, "second call must come from the cache")

	// Other objects get their own links.
	other, err := svc.Presign(ctx, "models", "part.obj", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestLinkCacheExpiresBeforeLink(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewLinkCache(rdb, zap.NewNop())

	ctx := context.Background()
	cache.Put(ctx, "models", "part.stl", "https://example.com/link", time.Hour)

	link, ok := cache.Get(ctx, "models", "part.stl")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/link", link)

	ttl := mr.TTL("presign:models:part.stl")
	assert.LessOrEqual(t, ttl, time.Hour-linkCacheMargin)
	assert.Greater(t, ttl, time.Duration(0))

	// Entries shorter than the safety margin are not cached at all.
	cache.Put(ctx, "models", "short.stl", "https://example.com/short", time.Minute)
	_, ok = cache.Get(ctx, "models", "short.stl")
	assert.False(t, ok)
}
