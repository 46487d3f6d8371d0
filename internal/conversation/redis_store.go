package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// KEYS[1] history list, KEYS[2] meta hash; ARGV[1] seed turn, ARGV[2] ttl ms, ARGV[3] now ms.
var createSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('DEL', KEYS[2])
  redis.call('RPUSH', KEYS[1], ARGV[1])
  redis.call('HSET', KEYS[2], 'created_at', ARGV[3])
end
redis.call('HSET', KEYS[2], 'last_active', ARGV[3])
if tonumber(ARGV[2]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return {redis.call('LRANGE', KEYS[1], 0, -1), redis.call('HGET', KEYS[2], 'created_at')}
`)

// KEYS as above; ARGV[1] ttl ms, ARGV[2] now ms, ARGV[3..] turns. Returns -1 when the session is gone.
var appendSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
for i = 3, #ARGV do
  redis.call('RPUSH', KEYS[1], ARGV[i])
end
redis.call('HSET', KEYS[2], 'last_active', ARGV[2])
if tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  redis.call('PEXPIRE', KEYS[2], ARGV[1])
end
return redis.call('LLEN', KEYS[1])
`)

// RedisSessionStore keeps each history as a Redis list so sessions survive restarts and
// can be shared by several API processes. Every write refreshes the idle TTL.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	now    func() time.Time
	tracer trace.Tracer
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		now:    time.Now,
		tracer: otel.Tracer("intake.internal.conversation.redis_store"),
	}
}

func (s *RedisSessionStore) Load(ctx context.Context, userID string) (Session, bool, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_session")
	defer span.End()

	pipe := s.redis.Pipeline()
	rangeCmd := pipe.LRange(ctx, sessionKey(userID), 0, -1)
	metaCmd := pipe.HMGet(ctx, sessionMetaKey(userID), "created_at", "last_active")
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return Session{}, false, fmt.Errorf("conversation: failed to load session: %w", err)
	}

	raw := rangeCmd.Val()
	if len(raw) == 0 {
		return Session{}, false, nil
	}
	history, err := decodeTurns(raw)
	if err != nil {
		span.RecordError(err)
		return Session{}, false, err
	}

	session := Session{UserID: userID, History: history}
	if meta := metaCmd.Val(); len(meta) == 2 {
		session.CreatedAt = parseMillis(meta[0])
		session.LastActive = parseMillis(meta[1])
	}
	return session, true, nil
}

func (s *RedisSessionStore) Create(ctx context.Context, userID string, seed ChatMessage) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.create_session")
	defer span.End()

	data, err := json.Marshal(seed)
	if err != nil {
		span.RecordError(err)
		return Session{}, fmt.Errorf("conversation: failed to marshal seed turn: %w", err)
	}
	now := s.now()
	res, err := createSessionScript.Run(ctx, s.redis,
		[]string{sessionKey(userID), sessionMetaKey(userID)},
		string(data), s.ttl.Milliseconds(), now.UnixMilli(),
	).Slice()
	if err != nil {
		span.RecordError(err)
		return Session{}, fmt.Errorf("conversation: failed to create session: %w", err)
	}
	if len(res) == 0 {
		return Session{}, errors.New("conversation: create session returned no data")
	}

	items, _ := res[0].([]interface{})
	raw := make([]string, 0, len(items))
	for _, item := range items {
		if str, ok := item.(string); ok {
			raw = append(raw, str)
		}
	}
	history, err := decodeTurns(raw)
	if err != nil {
		span.RecordError(err)
		return Session{}, err
	}

	session := Session{UserID: userID, History: history, LastActive: now}
	if len(res) > 1 {
		session.CreatedAt = parseMillis(res[1])
	}
	return session, nil
}

func (s *RedisSessionStore) Append(ctx context.Context, userID string, turns ...ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_session")
	defer span.End()

	args := make([]interface{}, 0, len(turns)+2)
	args = append(args, s.ttl.Milliseconds(), s.now().UnixMilli())
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: failed to marshal turn: %w", err)
		}
		args = append(args, string(data))
	}

	n, err := appendSessionScript.Run(ctx, s.redis, []string{sessionKey(userID), sessionMetaKey(userID)}, args...).Int64()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to append turns: %w", err)
	}
	if n < 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Len counts session keys with SCAN; it is meant for diagnostics, not hot paths.
func (s *RedisSessionStore) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, sessionKeyPrefix+"*:history", 500).Result()
		if err != nil {
			return 0, fmt.Errorf("conversation: failed to count sessions: %w", err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

const sessionKeyPrefix = "intake:session:"

func sessionKey(userID string) string {
	return sessionKeyPrefix + userID + ":history"
}

func sessionMetaKey(userID string) string {
	return sessionKeyPrefix + userID + ":meta"
}

func decodeTurns(raw []string) ([]ChatMessage, error) {
	history := make([]ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("conversation: failed to decode turn: %w", err)
		}
		history = append(history, msg)
	}
	return history, nil
}

func parseMillis(v interface{}) time.Time {
	str, ok := v.(string)
	if !ok || str == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
