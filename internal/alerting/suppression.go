package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults for threshold alert suppression.
const (
	DefaultSuppressionWindow   = time.Hour
	DefaultSuppressionCapacity = 10000
)

// Suppressor enforces a minimum interval between repeated alerts of the same
// key. Allow is an atomic check-and-set: it reports whether an alert may fire
// now and, if so, records now as the key's last-fired time.
type Suppressor interface {
	Allow(ctx context.Context, key string, now time.Time) bool
}

// SuppressionKey builds the per-host, per-category key, e.g. "web-1_cpu".
func SuppressionKey(hostName, category string) string {
	return hostName + "_" + category
}

// MemorySuppressor keeps last-fired times in a bounded LRU whose entries
// expire once the window has passed. An evicted key behaves as never fired.
type MemorySuppressor struct {
	mu     sync.Mutex
	window time.Duration
	fired  *expirable.LRU[string, time.Time]
}

func NewMemorySuppressor(window time.Duration, capacity int) *MemorySuppressor {
	if window <= 0 {
		window = DefaultSuppressionWindow
	}
	if capacity <= 0 {
		capacity = DefaultSuppressionCapacity
	}
	return &MemorySuppressor{
		window: window,
		fired:  expirable.NewLRU[string, time.Time](capacity, nil, window),
	}
}

func (m *MemorySuppressor) Allow(_ context.Context, key string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.fired.Get(key); ok && now.Sub(last) <= m.window {
		return false
	}
	m.fired.Add(key, now)
	return true
}

// Len returns the number of keys currently tracked.
func (m *MemorySuppressor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired.Len()
}
