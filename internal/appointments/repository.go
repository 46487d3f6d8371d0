package appointments

import (
	"context"
	"sort"
	"sync"
)

// Repository persists appointments. TransitionStatus is a compare-and-set from
// pending: it returns the stored record with ErrTerminalStatus when the appointment
// has already been decided.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	TransitionStatus(ctx context.Context, id string, to Status) (*Appointment, error)
	ListByUser(ctx context.Context, userID string) ([]*Appointment, error)
	ListAll(ctx context.Context) ([]*Appointment, error)
}

// InMemoryRepository is a Repository for tests and single-process deployments.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Appointment)}
}

func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[appt.ID] = appt.clone()
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return appt.clone(), nil
}

func (r *InMemoryRepository) TransitionStatus(ctx context.Context, id string, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if appt.Status != StatusPending {
		return appt.clone(), ErrTerminalStatus
	}
	appt.Status = to
	return appt.clone(), nil
}

func (r *InMemoryRepository) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0)
	for _, appt := range r.items {
		if appt.UserID == userID {
			out = append(out, appt.clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepository) ListAll(ctx context.Context) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0, len(r.items))
	for _, appt := range r.items {
		out = append(out, appt.clone())
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(items []*Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
