package conversations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/receptionist/internal/session"
)

// InMemoryStore keeps finished conversations for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

func (s *InMemoryStore) Append(_ context.Context, record Record) error {
	if err := record.validate(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	record.Transcript = append([]session.Turn(nil), record.Transcript...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.OwnerID] = append(s.records[record.OwnerID], record)
	return nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]Record, error) {
	s.mu.RLock()
	arr := append([]Record(nil), s.records[ownerID]...)
	s.mu.RUnlock()

	sort.SliceStable(arr, func(i, j int) bool {
		return arr[i].StartedAt.After(arr[j].StartedAt)
	})
	if limit > 0 && limit < len(arr) {
		arr = arr[:limit]
	}
	return arr, nil
}

// Len reports the total number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, arr := range s.records {
		n += len(arr)
	}
	return n
}

func (s *InMemoryStore) Close() error { return nil }
