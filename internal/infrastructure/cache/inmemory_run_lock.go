package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryRunLock implements accounting.RunLock within one process.
// It does not coordinate separate instances.
type InMemoryRunLock struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

// NewInMemoryRunLock creates an empty in-memory lock table
func NewInMemoryRunLock() *InMemoryRunLock {
	return &InMemoryRunLock{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// TryAcquire takes the lock when free or expired
func (l *InMemoryRunLock) TryAcquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, held := l.locks[key]; held && now.Before(e.expiresAt) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release frees the lock if token still owns it
func (l *InMemoryRunLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, held := l.locks[key]; held && e.token == token {
		delete(l.locks, key)
	}
	return nil
}

// Close drops all held locks
func (l *InMemoryRunLock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.locks)
	return nil
}

var _ accounting.RunLock = (*InMemoryRunLock)(nil)
