package tokenstore

import (
	"context"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, p Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range p.fields() {
		if v == "" {
			delete(m.data, k)
			continue
		}
		m.data[k] = v
	}
	return nil
}

// Load implements Store.
func (m *Memory) Load(_ context.Context) (Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Pair{Access: m.data[KeyAccess], Refresh: m.data[KeyRefresh]}, nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, KeyAccess)
	delete(m.data, KeyRefresh)
	delete(m.data, KeyLegacy)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// SetRaw writes a single key, bypassing Pair. It exists to seed legacy state.
func (m *Memory) SetRaw(key, value string) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

// Raw returns the value stored under key.
func (m *Memory) Raw(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}
