package watermark

import (
	"context"
	"sync"

	"unitrade/internal/domain/repository"
)

type memoryStore struct {
	mu    sync.RWMutex
	marks map[string]int64
}

// NewMemoryStore keeps watermarks for the lifetime of the process only.
func NewMemoryStore() repository.WatermarkStore {
	return &memoryStore{marks: make(map[string]int64)}
}

func (s *memoryStore) Get(ctx context.Context, uid, deviceID, listingID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.marks[key(uid, deviceID, listingID)]
	return v, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, uid, deviceID, listingID string, seenAtMillis int64) error {
	s.mu.Lock()
	s.marks[key(uid, deviceID, listingID)] = seenAtMillis
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Close() error { return nil }
