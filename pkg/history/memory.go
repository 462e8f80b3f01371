package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory for local/dev use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Save(_ context.Context, id, userIP string, messages []Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	msgs := append([]Message(nil), messages...)

	if rec, ok := s.records[id]; ok && id != "" {
		rec.Messages = msgs
		rec.UpdatedAt = now
		return id, nil
	}
	if id == "" {
		id = uuid.NewString()
	}
	s.records[id] = &Record{
		ID:        id,
		UserIP:    userIP,
		Messages:  msgs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	out.Messages = append([]Message(nil), rec.Messages...)
	return &out, nil
}

func (s *MemoryStore) Close() error { return nil }
