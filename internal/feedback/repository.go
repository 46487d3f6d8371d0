package feedback

import (
	"context"
	"sort"
	"sync"
)

// Repository persists feedback.
type Repository interface {
	Create(ctx context.Context, fb *Feedback) error
	List(ctx context.Context) ([]*Feedback, error)
}

// InMemoryRepository is a Repository backed by a slice.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items []*Feedback
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Create(ctx context.Context, fb *Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *fb
	r.items = append(r.items, &copied)
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context) ([]*Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Feedback, 0, len(r.items))
	for _, fb := range r.items {
		copied := *fb
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
