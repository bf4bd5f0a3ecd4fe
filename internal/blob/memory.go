package blob

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	artifact  Artifact
	expiresAt time.Time
}

// MemoryStore keeps artifacts in process memory. Intended for development
// and tests; production uses the S3 store where the object store owns
// eviction. A TTL keeps dev processes from growing without bound.
type MemoryStore struct {
	mu              sync.RWMutex
	items           map[string]memoryEntry
	ttl             time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
	cleanupInterval time.Duration
}

// NewMemoryStore creates an in-memory store. Non-positive ttl or interval
// fall back to defaults.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	s := &MemoryStore{
		items:           make(map[string]memoryEntry),
		ttl:             ttl,
		stopCleanup:     make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}

	// background cleanup routine
	go s.cleanupExpired()

	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Artifact, bool, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		if e, exists := s.items[key]; exists && now.After(e.expiresAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}

	artifact := entry.artifact
	return &artifact, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, artifact *Artifact) error {
	// Copy to decouple from caller's buffer
	bytesCopy := make([]byte, len(artifact.Bytes))
	copy(bytesCopy, artifact.Bytes)

	metaCopy := make(map[string]string, len(artifact.Metadata))
	for k, v := range artifact.Metadata {
		metaCopy[k] = v
	}

	s.mu.Lock()
	s.items[key] = memoryEntry{
		artifact: Artifact{
			Bytes:       bytesCopy,
			ContentType: artifact.ContentType,
			Metadata:    metaCopy,
		},
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return nil
}

// cleanupExpired runs periodically to remove expired entries.
func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, v := range s.items {
				if now.After(v.expiresAt) {
					delete(s.items, k)
				}
			}
			s.mu.Unlock()
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine. Call this on shutdown or in tests.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Len returns the number of items currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Delete removes a key. Useful for tests simulating external eviction.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}
