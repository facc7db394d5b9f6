package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryWindow one in-flight counter window
type memoryWindow struct {
	count int
	reset time.Time
}

// memoryCounterStore implements CounterStore with process-local state
//
// Suitable for single-instance deployments only; a fleet needs the Redis
// store so all instances share one counter space.
type memoryCounterStore struct {
	lock    sync.Mutex
	windows map[string]*memoryWindow

	// timeNow injectable clock for unit-testing window expiry
	timeNow func() time.Time
}

/*
NewMemoryCounterStore define new in-memory window counter store

	@returns store instance
*/
func NewMemoryCounterStore() CounterStore {
	return &memoryCounterStore{
		windows: make(map[string]*memoryWindow),
		timeNow: time.Now,
	}
}

/*
Take count one request against a window counter

	@param ctx context.Context - execution context
	@param key string - the (profile, identifier) counter key
	@param ceiling int - the profile request ceiling
	@param window time.Duration - the fixed window duration
	@returns whether the request fit the ceiling, the requests used so far
	    within the window, and the window expiry
*/
func (s *memoryCounterStore) Take(
	_ context.Context, key string, ceiling int, window time.Duration,
) (bool, int, time.Time, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.timeNow()

	entry, exists := s.windows[key]
	if !exists || now.After(entry.reset) {
		// Start a fresh window
		entry = &memoryWindow{count: 1, reset: now.Add(window)}
		s.windows[key] = entry
		return true, entry.count, entry.reset, nil
	}

	if entry.count >= ceiling {
		return false, entry.count, entry.reset, nil
	}

	entry.count++
	return true, entry.count, entry.reset, nil
}
