// SPDX-License-Identifier: MPL-2.0

package ranking

import (
	"maps"
	"sync"
	"time"
)

type (
	// Clock abstracts time for the tracker.
	Clock interface {
		Now() time.Time
	}

	// Tracker counts key accesses for the lifetime of the process.
	Tracker struct {
		mu    sync.Mutex
		clock Clock
		usage map[string]UsageRecord
	}

	systemClock struct{}
)

func (systemClock) Now() time.Time { return time.Now() }

// NewTracker creates an empty tracker. A nil clock uses wall time.
func NewTracker(clock Clock) *Tracker {
	if clock == nil {
		clock = systemClock{}
	}
	return &Tracker{clock: clock, usage: make(map[string]UsageRecord)}
}

// Record notes one access of key now.
func (t *Tracker) Record(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.usage[key]
	u.AccessCount++
	u.LastAccessTime = t.clock.Now()
	t.usage[key] = u
}

// Get returns the usage of key.
func (t *Tracker) Get(key string) (UsageRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.usage[key]
	return u, ok
}

// Snapshot returns a copy of all usage.
func (t *Tracker) Snapshot() map[string]UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.usage)
}

// Reset forgets all usage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.usage)
}

// Now returns the tracker's current time.
func (t *Tracker) Now() time.Time { return t.clock.Now() }
