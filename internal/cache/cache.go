// Package cache provides a process-lifetime TTL store plus a last-known-good
// side store. Entries expire purely by timestamp comparison at read time;
// there is no background sweep and no size bound.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	expiresAt time.Time
	value     V
}

// Store maps string keys to values with per-entry expiry.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
}

func New[V any]() *Store[V] {
	return &Store[V]{entries: make(map[string]entry[V])}
}

// Get returns the value for key if present and unexpired.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || !time.Now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key for ttl, overwriting any previous entry.
func (s *Store[V]) Put(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{expiresAt: time.Now().Add(ttl), value: value}
}

// LastGood retains the most recent successful value per key, independent
// of any TTL, for fallback when fresh resolution fails.
type LastGood[V any] struct {
	mu     sync.RWMutex
	values map[string]V
}

func NewLastGood[V any]() *LastGood[V] {
	return &LastGood[V]{values: make(map[string]V)}
}

func (l *LastGood[V]) Get(key string) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.values[key]
	return v, ok
}

func (l *LastGood[V]) Set(key string, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values[key] = value
}
