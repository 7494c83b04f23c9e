// Package querycache memoises read queries by key and drops them when a
// mutation that affects them succeeds.
package querycache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Query families. Every key is "<family>/<user id>[/...]".
const (
	Medications   = "medications"
	LogsToday     = "medication_logs_today"
	LogsMonth     = "medication_logs_month"
	CaretakerLogs = "caretaker_logs"
)

func MedicationsKey(userID string) string {
	return Medications + "/" + userID
}

func LogsTodayKey(userID, day string) string {
	return LogsToday + "/" + userID + "/" + day
}

func LogsMonthKey(userID string, year, month int) string {
	return fmt.Sprintf("%s/%s/%04d/%02d", LogsMonth, userID, year, month)
}

// CaretakerLogsKey is keyed by the patient whose logs are shown.
func CaretakerLogsKey(patientID string, year, month int) string {
	return fmt.Sprintf("%s/%s/%04d/%02d", CaretakerLogs, patientID, year, month)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is safe for concurrent use. Cached values are shared between callers
// and must be treated as read-only.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	generation uint64
	ttl        time.Duration
	group      singleflight.Group
	now        func() time.Time
}

// New returns a cache whose entries expire after ttl. A ttl of zero or less
// stores nothing; Load then only shares concurrent fetches.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Load returns the cached value for key or runs fetch once for all concurrent
// callers of the same key. Errors are never cached. A result whose fetch
// overlapped an invalidation is returned but not stored.
func Load[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.get(key); ok {
		return v.(T), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		gen := c.generation
		c.mu.RUnlock()

		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		if c.ttl <= 0 {
			return val, nil
		}
		c.mu.Lock()
		if c.generation == gen {
			c.entries[key] = entry{value: val, expiresAt: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// InvalidatePrefix drops every key equal to prefix or below it.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	removed := 0
	for k := range c.entries {
		if k == prefix || strings.HasPrefix(k, prefix+"/") {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Invalidate applies the dependency table for m to userID's queries.
func (c *Cache) Invalidate(m Mutation, userID string) int {
	removed := 0
	for _, family := range Dependencies[m] {
		removed += c.InvalidatePrefix(family + "/" + userID)
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
