package limiter

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many Allow calls pass between removals of idle keys.
const sweepEvery = 1024

// Memory is a per-process sliding-window limiter keeping a timestamp log per key.
type Memory struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu    sync.Mutex
	log   map[string][]time.Time
	calls int
}

// NewMemory constructs an in-memory limiter allowing max attempts per window.
func NewMemory(window time.Duration, max int) *Memory {
	return &Memory{window: window, max: max, now: time.Now, log: make(map[string][]time.Time)}
}

// Allow records an attempt unless max attempts already happened within the window.
func (m *Memory) Allow(_ context.Context, key []byte) (bool, time.Duration, error) {
	now := m.now()
	k := string(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	hits := trim(m.log[k], now.Add(-m.window))
	if len(hits) >= m.max {
		m.log[k] = hits
		return false, hits[0].Add(m.window).Sub(now), nil
	}
	m.log[k] = append(hits, now)
	return true, 0, nil
}

func (m *Memory) sweep(now time.Time) {
	cutoff := now.Add(-m.window)
	for k, hits := range m.log {
		if len(trim(hits, cutoff)) == 0 {
			delete(m.log, k)
		}
	}
}

// trim drops timestamps not after cutoff; hits is ordered.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
