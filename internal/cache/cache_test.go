// internal/cache/cache_test.go
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-agent/internal/common/config"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/models"
)

func newTestCache(t *testing.T) (*AnswerCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := config.CacheConfig{KeyPrefix: "qa", TTL: 1800}
	return New(client, cfg, "gpt-4o-mini", logger.NewTestLogger(t)), mr
}

func answerFor(q string) *models.FinalAnswer {
	return &models.FinalAnswer{Question: q, Insight: "insight for " + q}
}

func TestFingerprint_Normalization(t *testing.T) {
	c, _ := newTestCache(t)

	assert.Equal(t, c.Fingerprint("Total  Revenue?"), c.Fingerprint("  total revenue?  "))
	assert.NotEqual(t, c.Fingerprint("total revenue?"), c.Fingerprint("total profit?"))
}

func TestFingerprint_IncludesModelID(t *testing.T) {
	c1, _ := newTestCache(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c2 := New(client, config.CacheConfig{KeyPrefix: "qa"}, "other-model", logger.NewTestLogger(t))

	assert.NotEqual(t, c1.Fingerprint("q"), c2.Fingerprint("q"))
}

func TestGetOrCompute_CachesSecondCall(t *testing.T) {
	c, _ := newTestCache(t)
	var computes int32

	compute := func(context.Context) (*models.FinalAnswer, error) {
		atomic.AddInt32(&computes, 1)
		return answerFor("q"), nil
	}

	first, cached, err := c.GetOrCompute(context.Background(), "q", compute)
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := c.GetOrCompute(context.Background(), "q", compute)
	require.NoError(t, err)
	assert.True(t, cached)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&computes))
}

func TestGetOrCompute_AtMostOneConcurrentComputation(t *testing.T) {
	c, _ := newTestCache(t)

	var computes int32
	started := make(chan struct{})
	release := make(chan struct{})

	compute := func(context.Context) (*models.FinalAnswer, error) {
		atomic.AddInt32(&computes, 1)
		close(started)
		<-release
		return answerFor("q"), nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]*models.FinalAnswer, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ans, _, err := c.GetOrCompute(context.Background(), "q", compute)
			require.NoError(t, err)
			results[i] = ans
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&computes))
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestGetOrCompute_ErrorsNotCached(t *testing.T) {
	c, _ := newTestCache(t)
	var computes int32

	failing := func(context.Context) (*models.FinalAnswer, error) {
		atomic.AddInt32(&computes, 1)
		return nil, errors.New("MODEL_UNAVAILABLE")
	}

	_, _, err := c.GetOrCompute(context.Background(), "q", failing)
	require.Error(t, err)

	// Next caller retries fresh rather than observing a cached failure.
	ans, cached, err := c.GetOrCompute(context.Background(), "q", func(context.Context) (*models.FinalAnswer, error) {
		atomic.AddInt32(&computes, 1)
		return answerFor("q"), nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.NotNil(t, ans)
	assert.Equal(t, int32(2), atomic.LoadInt32(&computes))
}

func TestGetOrCompute_StoreFailureReturnsFreshAnswer(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close() // every redis op now fails

	ans, cached, err := c.GetOrCompute(context.Background(), "q", func(context.Context) (*models.FinalAnswer, error) {
		return answerFor("q"), nil
	})

	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "insight for q", ans.Insight)
}

func TestGetOrCompute_SurvivesCallerCancellation(t *testing.T) {
	c, _ := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // abandoned before the pipeline even starts

	ans, _, err := c.GetOrCompute(ctx, "q", func(inner context.Context) (*models.FinalAnswer, error) {
		require.NoError(t, inner.Err())
		return answerFor("q"), nil
	})

	require.NoError(t, err)
	assert.NotNil(t, ans)

	// and the result was cached for subsequent callers
	_, cached, err := c.GetOrCompute(context.Background(), "q", func(context.Context) (*models.FinalAnswer, error) {
		t.Fatal("should have been served from cache")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestInvalidateAll(t *testing.T) {
	c, _ := newTestCache(t)
	var computes int32

	compute := func(context.Context) (*models.FinalAnswer, error) {
		atomic.AddInt32(&computes, 1)
		return answerFor("q"), nil
	}

	_, _, err := c.GetOrCompute(context.Background(), "q", compute)
	require.NoError(t, err)

	require.NoError(t, c.InvalidateAll(context.Background()))

	_, cached, err := c.GetOrCompute(context.Background(), "q", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&computes))
}
