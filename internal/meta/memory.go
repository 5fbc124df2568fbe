package meta

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a map-backed Store used in tests. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	rec.ID = id
	s.records[id] = cloneRecord(*rec)
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("update %q: %w", id, ErrNotFound)
	}

	for path, value := range fields {
		switch path {
		case "isPrimary":
			rec.IsPrimary = value.(bool)
		case CounterLikes:
			rec.LikeCount = toInt64(value)
		case CounterDownloads:
			rec.DownloadCount = toInt64(value)
		case "tags":
			rec.Tags = append([]string(nil), value.([]string)...)
		case "category":
			rec.Category = value.(string)
		case "title":
			rec.Title = value.(string)
		case "description":
			rec.Description = value.(string)
		case "visibilityTier":
			rec.VisibilityTier = value.(string)
		case "featured":
			rec.Featured = value.(bool)
		default:
			return fmt.Errorf("update %q: unsupported field %q", id, path)
		}
	}

	s.records[id] = rec
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filters) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for _, rec := range s.records {
		if f.OwnerRef != nil && rec.OwnerRef != *f.OwnerRef {
			continue
		}
		if f.Category != nil && rec.Category != *f.Category {
			continue
		}
		if f.VisibilityTier != nil && rec.VisibilityTier != *f.VisibilityTier {
			continue
		}
		if f.Featured != nil && rec.Featured != *f.Featured {
			continue
		}
		records = append(records, cloneRecord(rec))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UploadedAt.After(records[j].UploadedAt)
	})
	return filterByTag(records, f.Tag), nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(rec Record) Record {
	rec.Tags = append([]string(nil), rec.Tags...)
	return rec
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		panic(fmt.Sprintf("unsupported counter value type %T", v))
	}
}
