package validate

import (
	"sync"
	"time"
)

// CooldownKey is the durable key holding the epoch-millisecond deadline
// before which validation calls are suppressed.
const CooldownKey = "validation_cooldown_until"

// CooldownStore persists the client-side rate-limit deadline. Read before
// every validation call, written on 429.
type CooldownStore interface {
	Deadline() (time.Time, error)
	SetDeadline(until time.Time) error
}

// MemoryStore keeps the cooldown deadline in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	until time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Deadline() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.until, nil
}

func (s *MemoryStore) SetDeadline(until time.Time) error {
	s.mu.Lock()
	s.until = until
	s.mu.Unlock()
	return nil
}
