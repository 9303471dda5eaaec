package audit

import (
	"context"
	"sync"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

// MemoryStore keeps entries in process; used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e model.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) Trim(_ context.Context, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max < 0 {
		max = 0
	}
	if over := len(s.entries) - max; over > 0 {
		s.entries = append([]model.LogEntry(nil), s.entries[over:]...)
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
