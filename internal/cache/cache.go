// internal/cache/cache.go
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"insight-agent/internal/common/config"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/common/metrics"
	"insight-agent/internal/models"
)

// ComputeFunc produces a fresh answer on cache miss.
type ComputeFunc func(ctx context.Context) (*models.FinalAnswer, error)

// entry is the persisted cache format: the answer plus its creation time.
type entry struct {
	Answer    *models.FinalAnswer `json:"answer"`
	CreatedAt time.Time           `json:"createdAt"`
}

// AnswerCache memoizes full pipeline results keyed by question fingerprint.
//
// The principal contract is at most one concurrent computation per
// fingerprint: concurrent identical questions share a single in-flight
// computation via singleflight instead of each invoking the model. The Redis
// store is an optimization only; its failures are logged and never surfaced.
type AnswerCache struct {
	client *redis.Client
	cfg    config.CacheConfig
	group  singleflight.Group
	logger logger.Logger

	// config that affects answers, part of the fingerprint
	modelID string
}

func New(client *redis.Client, cfg config.CacheConfig, modelID string, log logger.Logger) *AnswerCache {
	return &AnswerCache{
		client:  client,
		cfg:     cfg,
		modelID: modelID,
		logger:  log.WithFields(map[string]interface{}{"component": "cache"}),
	}
}

// Fingerprint is a stable hash over the normalized question text and the
// model identifier. Normalization is trim, whitespace collapse, lower case.
func (c *AnswerCache) Fingerprint(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized + "|" + c.modelID))
	return hex.EncodeToString(sum[:])
}

func (c *AnswerCache) key(fingerprint string) string {
	return c.cfg.KeyPrefix + ":" + fingerprint
}

// GetOrCompute returns the cached answer for the question or computes it.
// The bool reports whether the answer came from the cache. Computation runs
// detached from the caller's cancellation: an abandoned request still
// completes and populates the cache for subsequent callers.
func (c *AnswerCache) GetOrCompute(ctx context.Context, question string, compute ComputeFunc) (*models.FinalAnswer, bool, error) {
	fp := c.Fingerprint(question)

	type flightResult struct {
		answer *models.FinalAnswer
		cached bool
	}

	v, err, _ := c.group.Do(fp, func() (interface{}, error) {
		detached := context.WithoutCancel(ctx)

		if answer, ok := c.lookup(detached, fp); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return flightResult{answer: answer, cached: true}, nil
		}

		answer, err := compute(detached)
		if err != nil {
			// Failed runs are not cached; the next caller retries fresh.
			return nil, err
		}

		c.store(detached, fp, answer)
		return flightResult{answer: answer}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(flightResult)
	return res.answer, res.cached, nil
}

func (c *AnswerCache) lookup(ctx context.Context, fp string) (*models.FinalAnswer, bool) {
	if c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, c.key(fp)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			c.logger.WithError(err).Warn("cache read failed, computing fresh", map[string]interface{}{
				"fingerprint": fp,
			})
		} else {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.WithError(err).Warn("cache entry corrupt, computing fresh", map[string]interface{}{
			"fingerprint": fp,
		})
		return nil, false
	}
	return e.Answer, true
}

func (c *AnswerCache) store(ctx context.Context, fp string, answer *models.FinalAnswer) {
	if c.client == nil {
		return
	}

	raw, err := json.Marshal(entry{Answer: answer, CreatedAt: time.Now().UTC()})
	if err != nil {
		c.logger.WithError(err).Warn("cache entry marshal failed", nil)
		return
	}

	ttl := time.Duration(c.cfg.TTL) * time.Second
	if err := c.client.Set(ctx, c.key(fp), raw, ttl).Err(); err != nil {
		// Cache is an optimization, not a correctness dependency.
		c.logger.WithError(err).Warn("cache write failed, returning fresh answer", map[string]interface{}{
			"fingerprint": fp,
		})
	}
}

// InvalidateAll removes every cached answer. Called after a metadata refresh
// since answers assume a stable corpus snapshot.
func (c *AnswerCache) InvalidateAll(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	iter := c.client.Scan(ctx, 0, c.cfg.KeyPrefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}
