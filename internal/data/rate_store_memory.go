package data

import (
	"context"
	"sync"
	"time"

	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/domain/ratelimit"
)

// sweepEvery is how many Take calls pass between sweeps of lapsed buckets.
const sweepEvery = 256

// MemoryRateStore keeps fixed-window buckets in process memory. Counters are per replica.
type MemoryRateStore struct {
	mu      sync.Mutex
	buckets map[string]model.RateBucket
	calls   int
}

// NewMemoryRateStore creates an empty MemoryRateStore.
func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{buckets: make(map[string]model.RateBucket)}
}

// Take applies one request for identity.
func (s *MemoryRateStore) Take(_ context.Context, identity string, w ratelimit.Window, now time.Time) (model.RateDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls%sweepEvery == 0 {
		s.sweepLocked(now)
	}

	var current *model.RateBucket
	if b, ok := s.buckets[identity]; ok {
		current = &b
	}
	next, decision := ratelimit.Apply(current, identity, w, now)
	s.buckets[identity] = next
	return decision, nil
}

// Len returns the number of tracked identities.
func (s *MemoryRateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Sweep drops buckets whose window has ended.
func (s *MemoryRateStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *MemoryRateStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, b := range s.buckets {
		if ratelimit.Stale(b, now) {
			delete(s.buckets, id)
			removed++
		}
	}
	return removed
}
