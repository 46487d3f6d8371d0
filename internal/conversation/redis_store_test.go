package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, ttl), mr
}

func TestRedisSessionStore_CreateAppendLoad(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Hour)
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	session, err := store.Create(ctx, "u1", testSeed)
	require.NoError(t, err)
	assert.Equal(t, []ChatMessage{testSeed}, session.History)
	assert.True(t, session.CreatedAt.Equal(now))

	require.NoError(t, store.Append(ctx, "u1",
		ChatMessage{Role: ChatRoleUser, Content: "I have a headache"},
		ChatMessage{Role: ChatRoleAssistant, Content: "Since when?"},
	))

	again, err := store.Create(ctx, "u1", ChatMessage{Role: ChatRoleSystem, Content: "ignored"})
	require.NoError(t, err)
	assert.Len(t, again.History, 3, "create must not reseed an existing session")

	loaded, ok, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "I have a headache", loaded.History[1].Content)
	assert.Equal(t, "Since when?", loaded.History[2].Content)
	assert.True(t, loaded.CreatedAt.Equal(now))

	assert.Equal(t, time.Hour, mr.TTL(sessionKey("u1")))
	assert.Equal(t, time.Hour, mr.TTL(sessionMetaKey("u1")))
}

func TestRedisSessionStore_ExpiredSession(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	_, err := store.Create(ctx, "u1", testSeed)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	err = store.Append(ctx, "u1", ChatMessage{Role: ChatRoleUser, Content: "late"})
	assert.True(t, errors.Is(err, ErrSessionNotFound), "got %v", err)
}

func TestRedisSessionStore_AppendRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	_, err := store.Create(ctx, "u1", testSeed)
	require.NoError(t, err)
	mr.FastForward(50 * time.Second)
	require.NoError(t, store.Append(ctx, "u1", ChatMessage{Role: ChatRoleUser, Content: "hi"}))
	mr.FastForward(50 * time.Second)

	_, ok, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisSessionStore_Len(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, 0)

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Create(ctx, id, testSeed)
		require.NoError(t, err)
	}
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRedisSessionStore_WorksWithEngine(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Hour)
	engine := NewEngine(&scriptedLLMClient{}, store, nil)

	result := engine.HandleTurn(context.Background(), "u1", "I feel dizzy")
	require.Equal(t, OutcomeQuestion, result.Outcome)

	history := loadHistory(t, store, "u1")
	require.Len(t, history, 3)
	assert.Equal(t, ChatRoleSystem, history[0].Role)
}
