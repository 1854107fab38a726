package store

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome reported to the peer for one execution request.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Store remembers execution results by request id so that a redelivered
// request is answered without running the action again.
type Store interface {
	GetResult(ctx context.Context, requestID string) (Result, bool, error)
	MarkProcessed(ctx context.Context, requestID string, result Result, ttl time.Duration) error
}

type entry struct {
	result   Result
	expireAt time.Time
}

type MemoryStore struct {
	mu        sync.RWMutex
	processed map[string]entry
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		processed: make(map[string]entry),
		now:       time.Now,
	}
}

func (m *MemoryStore) GetResult(_ context.Context, requestID string) (Result, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.processed[requestID]
	if !ok || !m.now().Before(e.expireAt) {
		return Result{}, false, nil
	}
	return e.result, true, nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, requestID string, result Result, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, e := range m.processed {
		if !now.Before(e.expireAt) {
			delete(m.processed, id)
		}
	}
	m.processed[requestID] = entry{result: result, expireAt: now.Add(ttl)}
	return nil
}
