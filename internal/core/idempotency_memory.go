package core

import (
	"context"
	"sync"
	"time"

	"profilehub/internal/types"
)

type memoryIdempotencyEntry struct {
	record    IdempotencyRecord
	expiresAt time.Time
}

// MemoryIdempotencyStore keeps idempotency keys in process memory. Entries
// expire after ttl. It backs the memory store backend and tests.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryIdempotencyEntry
}

// NewMemoryIdempotencyStore creates a store whose keys live for ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryIdempotencyEntry),
	}
}

func idempotencyKey(key, actorID string) string {
	return actorID + "\x00" + key
}

// lookup returns the live entry for k, evicting it if expired. Callers hold mu.
func (s *MemoryIdempotencyStore) lookup(k string) (memoryIdempotencyEntry, bool) {
	e, ok := s.entries[k]
	if ok && !s.now().Before(e.expiresAt) {
		delete(s.entries, k)
		return memoryIdempotencyEntry{}, false
	}
	return e, ok
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key, actorID string) (*IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(idempotencyKey(key, actorID))
	if !ok {
		return nil, nil
	}
	rec := e.record
	rec.ResponseBody = append([]byte(nil), e.record.ResponseBody...)
	return &rec, nil
}

func (s *MemoryIdempotencyStore) Create(_ context.Context, key, actorID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey(key, actorID)
	if e, ok := s.lookup(k); ok && e.record.Status != IdempotencyStatusFailed {
		return types.NewAppError(types.ErrCodeConflictIdempotency, "idempotency key already in use", nil)
	}
	s.entries[k] = memoryIdempotencyEntry{
		record:    IdempotencyRecord{Status: IdempotencyStatusProcessing, Path: path},
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, key, actorID string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey(key, actorID)
	e, ok := s.lookup(k)
	if !ok {
		return nil
	}
	e.record.Status = IdempotencyStatusCompleted
	e.record.ResponseCode = status
	e.record.ResponseBody = append([]byte(nil), body...)
	s.entries[k] = e
	return nil
}

func (s *MemoryIdempotencyStore) Fail(_ context.Context, key, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey(key, actorID)
	if e, ok := s.lookup(k); ok {
		e.record.Status = IdempotencyStatusFailed
		s.entries[k] = e
	}
	return nil
}

// DeleteExpired evicts expired keys and returns how many were removed.
func (s *MemoryIdempotencyStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}
