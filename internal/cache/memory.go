package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryStore keeps at most maxEntries values, evicting least recently used.
type MemoryStore struct {
	lru *lru.Cache
}

func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c, err := lru.New(maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryStore{lru: c}, nil
}

func (m *MemoryStore) Contains(_ context.Context, key string) (bool, error) {
	return m.lru.Contains(key), nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	b := v.([]byte)
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	b := make([]byte, len(value))
	copy(b, value)
	m.lru.Add(key, b)
	return nil
}

func (m *MemoryStore) Len() int {
	return m.lru.Len()
}
