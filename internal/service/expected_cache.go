package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sqlquest/sqlquest-api/internal/grading"
	"github.com/sqlquest/sqlquest-api/internal/models"
)

// ExpectedCache keeps decoded reference result sets in Redis so the hot
// submission path skips repeated JSON decoding. A nil Redis client disables
// caching entirely; lookups then decode straight from the challenge row.
type ExpectedCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewExpectedCache constructs the cache. client may be nil.
func NewExpectedCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ExpectedCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ExpectedCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "expected_cache").Logger(),
	}
}

type expectedPayload struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Expected returns the decoded reference result set for a challenge.
func (c *ExpectedCache) Expected(ctx context.Context, challenge models.Challenge) (grading.Expected, error) {
	key := fmt.Sprintf("sqlquest:expected:%d", challenge.ID)

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var payload expectedPayload
			if err := json.Unmarshal(raw, &payload); err == nil {
				return grading.Expected{
					Columns:      payload.Columns,
					Rows:         payload.Rows,
					OrderMatters: challenge.OrderMatters,
				}, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn().Err(err).Uint("challenge_id", challenge.ID).Msg("expected cache read failed")
		}
	}

	var payload expectedPayload
	if err := json.Unmarshal(challenge.ExpectedRows, &payload); err != nil {
		return grading.Expected{}, fmt.Errorf("decode expected rows for challenge %d: %w", challenge.ID, err)
	}

	if c.redis != nil {
		if raw, err := json.Marshal(payload); err == nil {
			if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn().Err(err).Uint("challenge_id", challenge.ID).Msg("expected cache write failed")
			}
		}
	}

	return grading.Expected{
		Columns:      payload.Columns,
		Rows:         payload.Rows,
		OrderMatters: challenge.OrderMatters,
	}, nil
}

// Invalidate drops a challenge's cached reference result set.
func (c *ExpectedCache) Invalidate(ctx context.Context, challengeID uint) {
	if c.redis == nil {
		return
	}
	key := fmt.Sprintf("sqlquest:expected:%d", challengeID)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("challenge_id", challengeID).Msg("expected cache invalidate failed")
	}
}
