package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/house-points-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientIsEmpty(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var out map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "housepoints:analytics:x", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "housepoints:analytics:x", map[string]int{"a": 1}, time.Minute))

	removed, err := repo.DeleteByPattern(ctx, "housepoints:*")
	assert.NoError(t, err)
	assert.Zero(t, removed)
	assert.Error(t, repo.Ping(ctx))
}

func TestCacheRepositoryReportsConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	repo := NewCacheRepository(client, zap.NewNop())
	ctx := context.Background()

	var out map[string]int
	err := repo.Get(ctx, "housepoints:analytics:x", &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.Contains(t, err.Error(), "redis get")

	_, err = repo.DeleteByPattern(ctx, "housepoints:*")
	assert.ErrorContains(t, err, "redis scan")
	assert.Error(t, repo.Ping(ctx))
}

func TestCacheRepositoryRejectsUnencodableValues(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	repo := NewCacheRepository(client, nil)

	err := repo.Set(context.Background(), "k", make(chan int), time.Minute)
	assert.ErrorContains(t, err, "encode cache value")
}
