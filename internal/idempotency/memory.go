package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	response  *Response
	expiresAt time.Time
}

// isExpired returns true once the entry has outlived its TTL
func (e *memoryEntry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore is a thread-safe in-process Store.
// Expired entries are dropped lazily on Get and by Purge.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves a stored response
func (s *MemoryStore) Get(_ context.Context, key string) (*Response, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	if entry.isExpired(s.now()) {
		s.deleteIfSame(key, entry)
		return nil, ErrNotFound
	}

	// Copy so callers cannot modify the stored body
	resp := *entry.response
	resp.Body = append([]byte(nil), entry.response.Body...)
	return &resp, nil
}

// Set stores a response for ttl
func (s *MemoryStore) Set(_ context.Context, key string, resp *Response, ttl time.Duration) error {
	stored := *resp
	stored.Body = append([]byte(nil), resp.Body...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		response:  &stored,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Delete removes a stored response
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

// deleteIfSame removes key only if it still holds entry, so a concurrent
// Set between the read and the delete survives
func (s *MemoryStore) deleteIfSame(key string, entry *memoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[key] == entry {
		delete(s.entries, key)
	}
}

// Purge drops every expired entry and returns how many were removed
func (s *MemoryStore) Purge() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.isExpired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of stored entries, expired ones included
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close drops all entries
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*memoryEntry)
	return nil
}
