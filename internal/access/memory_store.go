package access

import (
	"context"
	"sync"

	"profilehub/internal/types"
)

// MemoryMembershipStore is an in-process MembershipStore, used when no
// database is configured and in tests.
type MemoryMembershipStore struct {
	mu      sync.RWMutex
	records map[string]types.MembershipRecord
}

// NewMemoryMembershipStore returns an empty store.
func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{records: make(map[string]types.MembershipRecord)}
}

// Put replaces the membership record of userID.
func (s *MemoryMembershipStore) Put(userID string, rec types.MembershipRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = rec
}

func (s *MemoryMembershipStore) GetMembership(_ context.Context, userID string) (*types.MembershipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	teams := make([]types.TeamMembershipRecord, len(rec.Teams))
	copy(teams, rec.Teams)
	rec.Teams = teams
	return &rec, nil
}
