// Package storage provides durable key/value storage for client state,
// shaped like a browser's local storage.
package storage

import (
	"context"
	"sync"
)

// Storage is a string key/value store that survives restarts of the client.
type Storage interface {
	// GetItem returns the value for key and whether it was present.
	GetItem(ctx context.Context, key string) (string, bool, error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error
}

// Memory is an in-process Storage. Values live as long as the value does.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

// NewMemoryWith creates an in-memory storage seeded with one item.
func NewMemoryWith(key, value string) *Memory {
	m := NewMemory()
	m.items[key] = value
	return m
}

func (m *Memory) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

var (
	_ Storage = (*Memory)(nil)
	_ Storage = (*DuckDB)(nil)
)
