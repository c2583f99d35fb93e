// Package tabstore provides the reload-surviving storage behind the guest
// session's primary and backup tiers.
//
//   - Memory: process-local map, used in tests.
//   - Cookie: an encrypted browser-session cookie (gorilla/sessions). It lives
//     as long as the browser session, like tab-scoped storage.
//   - Redis: a hash per browser tab, keyed by a signed tab-id cookie.
package tabstore

import "sync"

// Memory is an in-process Storage. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty Memory storage.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
