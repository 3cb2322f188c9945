package session

import (
	"context"
	"sync"
	"time"

	"milecal/pkg/logging"
)

const sweepInterval = time.Minute

// MemoryStore keeps sessions in process memory. It is the default
// backend: single-process deployments need no external state.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry

	ttl       time.Duration
	stopSweep chan struct{}
	stopOnce  sync.Once
}

type memoryEntry struct {
	sess      *Session
	expiresAt time.Time
}

// NewMemoryStore creates a memory store whose sessions expire after ttl
// of idleness. A background sweeper reclaims expired entries.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	ms := &MemoryStore{
		sessions:  make(map[string]*memoryEntry),
		ttl:       ttl,
		stopSweep: make(chan struct{}),
	}

	go ms.sweepLoop()

	return ms
}

// Load implements Store.
func (ms *MemoryStore) Load(_ context.Context, sessionID string) (*Session, error) {
	ms.mu.RLock()
	entry, ok := ms.sessions[sessionID]
	ms.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.sess.Clone(), nil
}

// Save implements Store. The write refreshes the idle-expiry clock.
func (ms *MemoryStore) Save(_ context.Context, sess *Session) error {
	now := time.Now()
	stored := sess.Clone()
	stored.UpdatedAt = now

	ms.mu.Lock()
	ms.sessions[sess.ID] = &memoryEntry{
		sess:      stored,
		expiresAt: now.Add(ms.ttl),
	}
	ms.mu.Unlock()

	return nil
}

// Update implements Store. fn runs under the store's write lock, which
// serializes all mutations for a given ID: concurrent requests from the
// same browser cannot lose updates.
func (ms *MemoryStore) Update(_ context.Context, sessionID string, fn func(*Session) error) error {
	now := time.Now()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, ok := ms.sessions[sessionID]
	if !ok || now.After(entry.expiresAt) {
		return ErrNotFound
	}

	if err := fn(entry.sess); err != nil {
		return err
	}

	entry.sess.UpdatedAt = now
	entry.expiresAt = now.Add(ms.ttl)
	return nil
}

// Destroy implements Store. Destroying an absent session is a no-op.
func (ms *MemoryStore) Destroy(_ context.Context, sessionID string) error {
	ms.mu.Lock()
	delete(ms.sessions, sessionID)
	ms.mu.Unlock()
	return nil
}

// Close stops the background sweeper.
func (ms *MemoryStore) Close() {
	ms.stopOnce.Do(func() {
		close(ms.stopSweep)
	})
}

func (ms *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.sweep()
		case <-ms.stopSweep:
			return
		}
	}
}

func (ms *MemoryStore) sweep() {
	now := time.Now()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	count := 0
	for id, entry := range ms.sessions {
		if now.After(entry.expiresAt) {
			delete(ms.sessions, id)
			count++
		}
	}

	if count > 0 {
		logging.Debug("Session", "Swept %d expired sessions", count)
	}
}
