package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TurnLocker serializes turns for one user. The returned release func is idempotent.
type TurnLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

const (
	defaultTurnLockRetry   = 50 * time.Millisecond
	turnLockReleaseTimeout = 2 * time.Second
)

// KEYS[1] lock key; ARGV[1] owner token.
var releaseTurnLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisTurnLock serializes a user's turns across API processes sharing one Redis.
// The ttl must outlive a whole turn; an expired lock can be taken by another process.
type RedisTurnLock struct {
	redis *redis.Client
	ttl   time.Duration
	retry time.Duration
}

func NewRedisTurnLock(client *redis.Client, ttl time.Duration) *RedisTurnLock {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		panic("conversation: turn lock ttl must be positive")
	}
	return &RedisTurnLock{redis: client, ttl: ttl, retry: defaultTurnLockRetry}
}

// Lock takes the user's lock with SET NX PX, polling until it is free or ctx is done.
func (l *RedisTurnLock) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := turnLockKey(key)
	token := uuid.NewString()
	for {
		ok, err := l.redis.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("conversation: acquire turn lock: %w", err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The turn's ctx may already be cancelled; release must still reach Redis.
			releaseCtx, cancel := context.WithTimeout(context.Background(), turnLockReleaseTimeout)
			defer cancel()
			_ = releaseTurnLockScript.Run(releaseCtx, l.redis, []string{lockKey}, token).Err()
		})
	}, nil
}

func turnLockKey(userID string) string {
	return "intake:turnlock:" + userID
}
