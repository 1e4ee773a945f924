package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pulsetrail/api/metrics"
	"pulsetrail/api/models"
)

const memoryBackend = "memory"

// MemoryStore keeps events in process. It backs local development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []models.Event
	index  map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]struct{})}
}

func (s *MemoryStore) Insert(ctx context.Context, e models.Event) error {
	defer metrics.ObserveStore(memoryBackend, "insert", time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[e.ID]; exists {
		return fmt.Errorf("event %s already exists", e.ID)
	}
	e.Metadata = cloneMetadata(e.Metadata)
	s.events = append(s.events, e)
	s.index[e.ID] = struct{}{}
	return nil
}

// List returns newest first; events with equal timestamps are ordered by
// most recent insertion.
func (s *MemoryStore) List(ctx context.Context) ([]models.Event, error) {
	defer metrics.ObserveStore(memoryBackend, "list", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]models.Event, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		e.Metadata = cloneMetadata(e.Metadata)
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	defer metrics.ObserveStore(memoryBackend, "delete", time.Now())
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return false, nil
	}
	for i := range s.events {
		if s.events[i].ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
	delete(s.index, id)
	return true, nil
}

func (s *MemoryStore) Purge(ctx context.Context) (int, error) {
	defer metrics.ObserveStore(memoryBackend, "purge", time.Now())
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.events)
	s.events = nil
	s.index = make(map[string]struct{})
	return n, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
