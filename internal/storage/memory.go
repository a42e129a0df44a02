// Copyright 2025 James Ross
package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Backend with no persistence, used in tests and by
// the engine's own test suite to exercise pipeline logic without touching a
// filesystem or network service.
type Memory struct {
	mu        sync.RWMutex
	chunks    map[string][]byte
	metadata  map[string][]byte
}

// NewMemory constructs an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		chunks:   make(map[string][]byte),
		metadata: make(map[string][]byte),
	}
}

func (m *Memory) PutChunk(_ context.Context, address string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.chunks[address] = cp
	return nil
}

func (m *Memory) GetChunk(_ context.Context, address string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.chunks[address]
	if !ok {
		return nil, notFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *Memory) ChunkExists(_ context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.chunks[address]
	return ok, nil
}

func (m *Memory) DeleteChunk(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, address)
	return nil
}

func (m *Memory) ListChunks(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.chunks))
	for addr := range m.chunks {
		out = append(out, addr)
	}
	return out, nil
}

func (m *Memory) PutMetadata(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.metadata[key] = cp
	return nil
}

func (m *Memory) GetMetadata(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.metadata[key]
	if !ok {
		return nil, notFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *Memory) DeleteMetadata(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.metadata, key)
	return nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total uint64
	for _, data := range m.chunks {
		total += uint64(len(data))
	}
	return Stats{TotalChunks: uint64(len(m.chunks)), TotalBytes: total}, nil
}
