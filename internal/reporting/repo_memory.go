package reporting

import (
	"context"
	"sync"
	"time"

	"calling-platform/internal/calls"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu   sync.Mutex
	rows []calls.Call
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Add(c calls.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, c)
}

func (r *MemoryRepo) ListUserCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []calls.Call
	for _, c := range r.rows {
		if c.CallerID != userID && c.ReceiverID != userID {
			continue
		}
		if c.CreatedAt.Before(from) || c.CreatedAt.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
