package conversation

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/valooran/patient-intake-system/pkg/logging"
)

const (
	EvictReasonIdle     = "idle"
	EvictReasonCapacity = "capacity"
)

// SessionObserver receives store gauges. *metrics.ConversationMetrics satisfies it.
type SessionObserver interface {
	SetActiveSessions(n int)
	ObserveEviction(reason string)
}

// MemorySessionStore keeps sessions in process with an LRU bound and an idle timeout.
// A zero bound or timeout disables that half of the policy.
type MemorySessionStore struct {
	mu          sync.Mutex
	entries     map[string]*list.Element
	order       *list.List // front is most recently active
	maxSessions int
	idleTTL     time.Duration
	now         func() time.Time
	sink        EvictionSink
	observer    SessionObserver
	logger      *logging.Logger

	// evictions collected under mu, delivered after it is released
	pending []evicted
}

type MemoryStoreOption func(*MemorySessionStore)

func WithMaxSessions(n int) MemoryStoreOption {
	return func(s *MemorySessionStore) { s.maxSessions = n }
}

func WithIdleTTL(d time.Duration) MemoryStoreOption {
	return func(s *MemorySessionStore) { s.idleTTL = d }
}

func WithEvictionSink(sink EvictionSink) MemoryStoreOption {
	return func(s *MemorySessionStore) { s.sink = sink }
}

func WithSessionObserver(observer SessionObserver) MemoryStoreOption {
	return func(s *MemorySessionStore) { s.observer = observer }
}

func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemorySessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStoreLogger(logger *logging.Logger) MemoryStoreOption {
	return func(s *MemorySessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewMemorySessionStore(opts ...MemoryStoreOption) *MemorySessionStore {
	s := &MemorySessionStore{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type evicted struct {
	session Session
	reason  string
}

func (s *MemorySessionStore) Load(ctx context.Context, userID string) (Session, bool, error) {
	now := s.now()
	s.mu.Lock()
	elem, ok := s.liveLocked(userID, now)
	var out Session
	if ok {
		session := elem.Value.(*Session)
		session.LastActive = now
		s.order.MoveToFront(elem)
		out = session.clone()
	}
	gone := s.drainLocked()
	s.mu.Unlock()

	s.deliver(ctx, gone, now)
	return out, ok, nil
}

func (s *MemorySessionStore) Create(ctx context.Context, userID string, seed ChatMessage) (Session, error) {
	now := s.now()
	s.mu.Lock()
	if elem, ok := s.liveLocked(userID, now); ok {
		s.order.MoveToFront(elem)
		out := elem.Value.(*Session).clone()
		gone := s.drainLocked()
		s.mu.Unlock()
		s.deliver(ctx, gone, now)
		return out, nil
	}

	session := &Session{
		UserID:     userID,
		History:    []ChatMessage{seed},
		CreatedAt:  now,
		LastActive: now,
	}
	s.entries[userID] = s.order.PushFront(session)
	if s.maxSessions > 0 {
		for s.order.Len() > s.maxSessions {
			s.removeLocked(s.order.Back(), EvictReasonCapacity)
		}
	}
	out := session.clone()
	gone := s.drainLocked()
	s.mu.Unlock()

	s.deliver(ctx, gone, now)
	return out, nil
}

func (s *MemorySessionStore) Append(ctx context.Context, userID string, turns ...ChatMessage) error {
	now := s.now()
	s.mu.Lock()
	elem, ok := s.liveLocked(userID, now)
	if ok {
		session := elem.Value.(*Session)
		session.History = append(session.History, turns...)
		session.LastActive = now
		s.order.MoveToFront(elem)
	}
	gone := s.drainLocked()
	s.mu.Unlock()

	s.deliver(ctx, gone, now)
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (s *MemorySessionStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// EvictIdle removes every session idle longer than the TTL as of now and returns the count.
func (s *MemorySessionStore) EvictIdle(ctx context.Context, now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	for elem := s.order.Back(); elem != nil; {
		session := elem.Value.(*Session)
		if now.Sub(session.LastActive) <= s.idleTTL {
			break
		}
		prev := elem.Prev()
		s.removeLocked(elem, EvictReasonIdle)
		elem = prev
	}
	gone := s.drainLocked()
	s.mu.Unlock()

	s.deliver(ctx, gone, now)
	return len(gone)
}

// RunJanitor calls EvictIdle every interval until ctx is cancelled.
func (s *MemorySessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(ctx, s.now()); n > 0 {
				s.logger.Info("evicted idle sessions", "count", n)
			}
		}
	}
}

func (s *MemorySessionStore) liveLocked(userID string, now time.Time) (*list.Element, bool) {
	elem, ok := s.entries[userID]
	if !ok {
		return nil, false
	}
	if s.idleTTL > 0 && now.Sub(elem.Value.(*Session).LastActive) > s.idleTTL {
		s.removeLocked(elem, EvictReasonIdle)
		return nil, false
	}
	return elem, true
}

func (s *MemorySessionStore) removeLocked(elem *list.Element, reason string) {
	session := s.order.Remove(elem).(*Session)
	delete(s.entries, session.UserID)
	s.pending = append(s.pending, evicted{session: *session, reason: reason})
}

func (s *MemorySessionStore) drainLocked() []evicted {
	gone := s.pending
	s.pending = nil
	if s.observer != nil {
		s.observer.SetActiveSessions(len(s.entries))
	}
	return gone
}

func (s *MemorySessionStore) deliver(ctx context.Context, gone []evicted, now time.Time) {
	for _, ev := range gone {
		if s.observer != nil {
			s.observer.ObserveEviction(ev.reason)
		}
		s.logger.Debug("session evicted", "user_id", ev.session.UserID, "reason", ev.reason, "turns", len(ev.session.History))
		if s.sink == nil {
			continue
		}
		if err := s.sink.SessionEvicted(context.WithoutCancel(ctx), ev.session, now); err != nil {
			s.logger.Warn("failed to archive evicted session", "user_id", ev.session.UserID, "error", err)
		}
	}
}
