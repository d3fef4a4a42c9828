package availability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used in dev mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key]*Record
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Key]*Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, professionalID, date string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[Key{ProfessionalID: professionalID, Date: date}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, exists := s.records[key]; exists {
		return ErrRecordExists
	}
	now := s.now().UTC()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Normalize()
	s.records[key] = rec.Clone()
	return nil
}

func (s *MemoryStore) Replace(ctx context.Context, rec *Record, expectedVersion int64) error {
	if rec == nil {
		return ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	current, ok := s.records[key]
	if !ok {
		return ErrRecordNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	rec.Version = expectedVersion + 1
	rec.CreatedAt = current.CreatedAt
	rec.UpdatedAt = s.now().UTC()
	rec.Normalize()
	s.records[key] = rec.Clone()
	return nil
}

func (s *MemoryStore) Range(ctx context.Context, professionalID, startDate, endDate string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for key, rec := range s.records {
		if key.ProfessionalID != professionalID {
			continue
		}
		// ISO dates compare lexically.
		if key.Date < startDate || key.Date > endDate {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
