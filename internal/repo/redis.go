package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct{ C *redis.Client }

func NewRedis(addr string) *Redis {
	return &Redis{C: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *Redis) Ping(ctx context.Context) error { return r.C.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.C.Close() }

// IncrAttempt bumps the per-identifier sign-in counter for the current
// one-minute window and returns the new count.
func (r *Redis) IncrAttempt(ctx context.Context, identifier string) (int, error) {
	key := fmt.Sprintf("rate_limit:%s", identifier)
	n, err := r.C.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		r.C.Expire(ctx, key, time.Minute)
	}
	return int(n), nil
}

// Dual-stage claims cache. The vault deletes the key on credential revoke or
// overwrite so a refreshed token sees the change on the next cache miss.

func dualStageKey(userID string) string { return "dualstage:" + userID }

func (r *Redis) GetDualStage(ctx context.Context, userID string) (institutionID string, ok bool, err error) {
	v, err := r.C.Get(ctx, dualStageKey(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) SetDualStage(ctx context.Context, userID, institutionID string, ttl time.Duration) error {
	return r.C.Set(ctx, dualStageKey(userID), institutionID, ttl).Err()
}

func (r *Redis) DelDualStage(ctx context.Context, userID string) error {
	return r.C.Del(ctx, dualStageKey(userID)).Err()
}
