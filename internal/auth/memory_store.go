package auth

import (
	"context"
	"sync"

	"profilehub/internal/types"
)

// MemoryIdentityStore keeps tokens and subscription levels in process. It
// backs the memory store mode and tests.
type MemoryIdentityStore struct {
	mu        sync.RWMutex
	tokens    map[string]string
	levels    map[string]types.SubscriptionLevel
	customers map[string]string
}

// NewMemoryIdentityStore returns an empty store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		tokens:    make(map[string]string),
		levels:    make(map[string]types.SubscriptionLevel),
		customers: make(map[string]string),
	}
}

// AddToken registers a raw token for userID. New users start on the free tier.
func (s *MemoryIdentityStore) AddToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[HashToken(token)] = userID
	if _, ok := s.levels[userID]; !ok {
		s.levels[userID] = types.LevelFree
	}
}

func (s *MemoryIdentityStore) GetTokenByHash(_ context.Context, hash string) (*types.APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.tokens[hash]
	if !ok {
		return nil, nil
	}
	return &types.APIToken{UserID: userID, SubscriptionLevel: s.levels[userID]}, nil
}

func (s *MemoryIdentityStore) SetSubscriptionLevel(_ context.Context, userID, customerID string, level types.SubscriptionLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.levels[userID]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user "+userID+" not found", nil)
	}
	s.levels[userID] = level
	if customerID != "" {
		s.customers[customerID] = userID
	}
	return nil
}

func (s *MemoryIdentityStore) SetSubscriptionLevelByCustomer(_ context.Context, customerID string, level types.SubscriptionLevel) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.customers[customerID]
	if !ok {
		return "", types.NewAppError(types.ErrCodeNotFoundUser, "no user linked to customer", nil)
	}
	s.levels[userID] = level
	return userID, nil
}
