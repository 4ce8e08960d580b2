package upload

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in-memory. It is safe for concurrent use and
// suits single-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
}

// NewMemoryStore constructs an in-memory store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Save(ctx context.Context, session Session, ttl time.Duration) error {
	s.mu.Lock()
	s.sessions[session.Token] = memoryEntry{session: session, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (Session, bool, error) {
	s.mu.RLock()
	entry, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return Session{}, false, nil
	}
	return entry.session, true, nil
}

// Append performs the read-modify-write under the store mutex so concurrent
// chunks for one token cannot overwrite each other.
func (s *MemoryStore) Append(ctx context.Context, token string, chunk []byte, ttl time.Duration) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return Session{}, false, nil
	}

	session := entry.session
	chunks := make([][]byte, 0, len(session.Chunks)+1)
	chunks = append(chunks, session.Chunks...)
	session.Chunks = append(chunks, chunk)
	session.UpdatedAt = time.Now().UTC()

	if session.Complete() {
		delete(s.sessions, token)
	} else {
		s.sessions[token] = memoryEntry{session: session, expiresAt: time.Now().Add(ttl)}
	}
	return session, true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	for token, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()
	return nil
}

// Ping always reports success for the in-memory store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
