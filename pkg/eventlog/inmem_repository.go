package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InMemRepository implements Repository with a slice guarded by a mutex.
type InMemRepository struct {
	events []Event
	mu     sync.RWMutex
}

// NewInMemRepository creates an empty in-memory event log
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{}
}

func (r *InMemRepository) Append(ctx context.Context, events ...Event) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := stamp(events, uint64(len(r.events)), time.Now().UTC())
	r.events = append(r.events, stored...)
	slog.Debug("Events appended", "count", len(stored), "last_sequence", len(r.events))
	return stored, nil
}

func (r *InMemRepository) List(ctx context.Context, filter Filter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Event
	for _, e := range r.events {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return limit(out, filter.Limit), nil
}

func (r *InMemRepository) LastSequence(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.events)), nil
}
