package billing

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"profilehub/internal/types"
)

// MemoryUsageStore is an in-process UsageStore. Increments are serialized by
// a mutex, which makes them atomic for a single process only.
type MemoryUsageStore struct {
	mu      sync.Mutex
	records map[string]types.UsageRecord
	now     func() time.Time
}

// NewMemoryUsageStore returns an empty MemoryUsageStore.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{
		records: make(map[string]types.UsageRecord),
		now:     time.Now,
	}
}

func usageKey(userID, month string) string {
	return userID + "|" + month
}

func (s *MemoryUsageStore) GetUsage(_ context.Context, userID, month string) (*types.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[usageKey(userID, month)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryUsageStore) IncrementUsage(ctx context.Context, userID, month string, delta types.UsageDelta) (*types.UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(userID, month)
	rec, ok := s.records[key]
	if !ok {
		rec = types.UsageRecord{UserID: userID, Month: month, TotalCost: decimal.Zero}
	}
	rec.TotalCost = rec.TotalCost.Add(delta.Cost)
	if delta.AIRun {
		rec.TotalRunsAI++
	}
	if delta.APIRun {
		rec.TotalRunsAPI++
	}
	rec.UpdatedAt = s.now().UTC()
	s.records[key] = rec

	out := rec
	return &out, nil
}
