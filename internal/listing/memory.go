package listing

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a map-backed Store used in tests. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]Media
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]Media)}
}

// Add registers a listing so media updates against it succeed.
func (s *MemoryStore) Add(ownerRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[ownerRef]; !ok {
		s.listings[ownerRef] = Media{}
	}
}

func (s *MemoryStore) GetMedia(ctx context.Context, ownerRef string) (*Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	media, ok := s.listings[ownerRef]
	if !ok {
		return nil, fmt.Errorf("get listing %q: %w", ownerRef, ErrNotFound)
	}
	media.ImageURLs = append([]string(nil), media.ImageURLs...)
	return &media, nil
}

func (s *MemoryStore) SetMedia(ctx context.Context, ownerRef string, media Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[ownerRef]; !ok {
		return fmt.Errorf("update listing %q: %w", ownerRef, ErrNotFound)
	}
	media.ImageURLs = append([]string(nil), media.ImageURLs...)
	s.listings[ownerRef] = media
	return nil
}
