package lockout

import (
	"context"
	"fmt"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/server/metrics"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lockout:"

type RedisLimiter struct {
	rdb    redis.Cmdable
	policy Policy
}

func NewRedisLimiter(rdb redis.Cmdable, policy Policy) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, policy: policy}
}

func attemptsKey(key string) string { return keyPrefix + "attempts:" + key }
func lockKey(key string) string     { return keyPrefix + "lock:" + key }

func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	n, err := l.rdb.Exists(ctx, lockKey(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: lockout check: %v", common.ErrStorageUnavailable, err)
	}
	if n > 0 {
		return common.ErrTooManyAttempts
	}
	return nil
}

// Fail counts one failure. The counter expires with the window that the
// first failure opened; reaching the limit swaps it for a lock key.
func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	ak := attemptsKey(key)

	n, err := l.rdb.Incr(ctx, ak).Result()
	if err != nil {
		return fmt.Errorf("%w: lockout incr: %v", common.ErrStorageUnavailable, err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, ak, l.policy.Window).Err(); err != nil {
			return fmt.Errorf("%w: lockout expire: %v", common.ErrStorageUnavailable, err)
		}
	}
	if n < int64(l.policy.MaxAttempts) {
		return nil
	}

	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, lockKey(key), n, l.policy.LockFor)
		pipe.Del(ctx, ak)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: lockout lock: %v", common.ErrStorageUnavailable, err)
	}
	metrics.LockoutsTotal.Inc()
	return nil
}

// Reset forgets past failures; an active lock stays until it expires.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, attemptsKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: lockout reset: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}
