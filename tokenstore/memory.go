package tokenstore

import (
	"context"
	"sync"
)

// Memory keeps the token in process memory. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory returns an empty [Memory] store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the stored token, or "".
func (m *Memory) Load(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

// Save replaces the stored token.
func (m *Memory) Save(ctx context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

// Clear forgets the stored token.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
