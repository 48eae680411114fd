package cooldown

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a non-durable Store used for dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]time.Time
	meta    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]time.Time),
		meta:    make(map[string]string),
	}
}

func (m *MemoryStore) LastNotified(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.records[key]
	return t, ok, nil
}

func (m *MemoryStore) Upsert(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = at.UTC()
	return nil
}

func (m *MemoryStore) Meta(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.meta[key]
	return v, ok, nil
}

func (m *MemoryStore) SetMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]time.Time)
	return nil
}

// Len returns the number of cooldown records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close() error { return nil }
