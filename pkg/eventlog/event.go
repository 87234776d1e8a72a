package eventlog

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event is one protocol event emitted by a contract during a call.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Sequence  uint64            `json:"sequence"`
	BlockTime uint64            `json:"block_time"`
	Emitter   common.Address    `json:"emitter"`
	Sender    common.Address    `json:"sender"`
	Name      string            `json:"name"`
	Args      map[string]string `json:"args"`
	CreatedAt time.Time         `json:"created_at"`
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Emitter       *common.Address
	Name          string
	AfterSequence uint64
	Limit         int
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f Filter) Matches(e Event) bool {
	if f.Emitter != nil && *f.Emitter != e.Emitter {
		return false
	}
	if f.Name != "" && f.Name != e.Name {
		return false
	}
	return e.Sequence > f.AfterSequence
}

// Repository is an append-only store of events.
type Repository interface {
	// Append stores events in order as one unit. Either all are stored or
	// none. The stored copies, with ID, Sequence and CreatedAt assigned,
	// are returned.
	Append(ctx context.Context, events ...Event) ([]Event, error)
	// List returns matching events ordered by sequence.
	List(ctx context.Context, filter Filter) ([]Event, error)
	// LastSequence is the sequence of the newest event, 0 when empty.
	LastSequence(ctx context.Context) (uint64, error)
}

// stamp assigns identity and ordering to events about to be stored after last.
func stamp(events []Event, last uint64, now time.Time) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.Sequence = last + uint64(i) + 1
		e.CreatedAt = now
		if e.Args == nil {
			e.Args = map[string]string{}
		}
		out[i] = e
	}
	return out
}

func limit(events []Event, n int) []Event {
	if n > 0 && len(events) > n {
		return events[:n]
	}
	return events
}
