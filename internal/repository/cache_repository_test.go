package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	ctx := context.Background()

	var dest []string
	err := repo.Get(ctx, "timetable:availability:v1:3_3", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(ctx, "timetable:availability:v1:3_3", []string{"C"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "timetable:*"))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryReportsUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewCacheRepository(client, zap.NewNop())
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	var dest []string
	err := repo.Get(ctx, "timetable:availability:v1:3_3", &dest)
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.Error(t, repo.DeleteByPattern(ctx, "timetable:*"))
}

func TestNamespacedKeys(t *testing.T) {
	assert.Equal(t, "sma-substitute:timetable:availability:v2:1_1", namespaced("timetable:availability:v2:1_1"))
}
