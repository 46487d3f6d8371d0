package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by Append when the session has been evicted or expired.
var ErrSessionNotFound = errors.New("conversation: session not found")

// Session is one user's conversation. History[0] is always the system instruction.
type Session struct {
	UserID     string        `json:"user_id"`
	History    []ChatMessage `json:"history"`
	CreatedAt  time.Time     `json:"created_at"`
	LastActive time.Time     `json:"last_active"`
}

// UserTurns counts the user messages recorded so far.
func (s Session) UserTurns() int {
	n := 0
	for _, msg := range s.History {
		if msg.Role == ChatRoleUser {
			n++
		}
	}
	return n
}

func (s Session) clone() Session {
	s.History = cloneMessages(s.History)
	return s
}

// SessionStore holds one append-only session per user. Implementations make each call
// atomic; callers serialize same-user sequences with a KeyedMutex.
type SessionStore interface {
	// Load returns the session for userID and whether it exists.
	Load(ctx context.Context, userID string) (Session, bool, error)
	// Create returns the existing session or creates one seeded with seed.
	Create(ctx context.Context, userID string, seed ChatMessage) (Session, error)
	// Append adds turns to the end of the session's history.
	Append(ctx context.Context, userID string, turns ...ChatMessage) error
	// Len reports the number of live sessions.
	Len(ctx context.Context) (int, error)
}

// EvictionSink receives sessions removed by the store's retention policy.
type EvictionSink interface {
	SessionEvicted(ctx context.Context, session Session, evictedAt time.Time) error
}
