package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/pricing"
)

type memoryEntry struct {
	session  Session
	consumed bool
}

// MemoryStore implements Store with in-memory storage. Consumed sessions are
// kept (tombstoned) until the TTL sweep so a replay can be told apart from an
// unknown id.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		sessions:    make(map[string]*memoryEntry),
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-SessionTTL)
	for id, entry := range s.sessions {
		if entry.session.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

func (s *MemoryStore) Create(_ context.Context, cart *pricing.PricedCart, customerRef string) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &memoryEntry{
		session: Session{
			ID:          id,
			Cart:        cart,
			CustomerRef: customerRef,
			CreatedAt:   time.Now(),
		},
	}
	return id, nil
}

func (s *MemoryStore) Consume(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	if entry.consumed {
		return nil, ErrSessionConsumed
	}
	if time.Since(entry.session.CreatedAt) > SessionTTL {
		delete(s.sessions, sessionID)
		return nil, ErrSessionNotFound
	}

	entry.consumed = true
	out := entry.session
	return &out, nil
}

func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

// newSessionID returns a cryptographically unguessable identifier. The id is
// the only thing placed in the payment-page URL, so it must not be derivable.
func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
