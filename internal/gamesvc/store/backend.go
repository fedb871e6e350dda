package store

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound        = errors.New("collection not found")
	ErrVersionConflict = errors.New("collection version conflict")
)

// Backend keeps one opaque blob per collection key. Versions start at 1 for the
// first write; 0 stands for "absent".
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, int64, error)
	// Put replaces the blob unconditionally. Concurrent writers lose each other's
	// changes: the last one wins.
	Put(ctx context.Context, key string, data []byte) (int64, error)
	// PutIfVersion replaces the blob only when the stored version still equals
	// version, otherwise it returns ErrVersionConflict.
	PutIfVersion(ctx context.Context, key string, data []byte, version int64) (int64, error)
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	data    []byte
	version int64
}

// MemoryBackend is a process-wide backend. Every Store built on the same
// MemoryBackend sees the same collections.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return append([]byte(nil), e.data...), e.version, nil
}

func (b *MemoryBackend) Put(_ context.Context, key string, data []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	version := b.entries[key].version + 1
	b.entries[key] = memoryEntry{data: append([]byte(nil), data...), version: version}
	return version, nil
}

func (b *MemoryBackend) PutIfVersion(_ context.Context, key string, data []byte, version int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries[key].version != version {
		return 0, ErrVersionConflict
	}
	next := version + 1
	b.entries[key] = memoryEntry{data: append([]byte(nil), data...), version: next}
	return next, nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, key)
	return nil
}

// Raw writes bytes as-is. Used to seed corrupt data in tests and by tooling.
func (b *MemoryBackend) Raw(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = memoryEntry{data: data, version: b.entries[key].version + 1}
}
