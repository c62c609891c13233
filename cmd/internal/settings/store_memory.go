package settings

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	values    map[configKey]int
	marketing map[string]map[string]string
}

type configKey struct {
	key   string
	group string
}

// NewMemoryStore returns a store with no overrides and the starter marketing copy.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:    make(map[configKey]int),
		marketing: DefaultMarketing(),
	}
}

// Set overrides the value for (key, group).
func (s *MemoryStore) Set(key, group string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[configKey{key: key, group: group}] = value
}

// SetMarketing replaces one message for a group.
func (s *MemoryStore) SetMarketing(group, messageType, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.marketing[group]
	if !ok {
		m = make(map[string]string)
		s.marketing[group] = m
	}
	m[messageType] = content
}

func (s *MemoryStore) GetConfigValue(_ context.Context, key, group string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[configKey{key: key, group: group}]; ok {
		return v
	}
	return Default(key)
}

func (s *MemoryStore) GetMarketingConfig(_ context.Context, group string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.marketing[group]))
	for k, v := range s.marketing[group] {
		out[k] = v
	}
	return out
}
