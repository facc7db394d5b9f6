package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCounterStore implements CounterStore on a shared Redis instance
//
// Lets multiple service instances share one counter space. Over-ceiling
// requests still INCR the key, but the window expiry is only set on the first
// request, so the observable fixed-window behavior matches the in-memory
// store.
type redisCounterStore struct {
	client *redis.Client
}

/*
NewRedisCounterStore define new Redis-backed window counter store

	@param client *redis.Client - the shared Redis client
	@returns store instance
*/
func NewRedisCounterStore(client *redis.Client) CounterStore {
	return &redisCounterStore{client: client}
}

/*
Take count one request against a window counter

	@param ctx context.Context - execution context
	@param key string - the (profile, identifier) counter key
	@param ceiling int - the profile request ceiling
	@param window time.Duration - the fixed window duration
	@returns whether the request fit the ceiling, the requests used so far
	    within the window, and the window expiry
*/
func (s *redisCounterStore) Take(
	ctx context.Context, key string, ceiling int, window time.Duration,
) (bool, int, time.Time, error) {
	counterKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := s.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf(
			"failed to increment counter '%s' [%w]", counterKey, err,
		)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, counterKey, window).Err(); err != nil {
			return false, 0, time.Time{}, fmt.Errorf(
				"failed to arm window expiry on '%s' [%w]", counterKey, err,
			)
		}
	}

	ttl, err := s.client.PTTL(ctx, counterKey).Result()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf(
			"failed to read window expiry of '%s' [%w]", counterKey, err,
		)
	}

	used := int(count)
	if used > ceiling {
		used = ceiling
	}

	return count <= int64(ceiling), used, time.Now().Add(ttl), nil
}
