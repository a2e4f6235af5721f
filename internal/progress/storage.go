package progress

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultKey is the storage key the progress blob is saved under.
const DefaultKey = "englishfamily.progress"

const dbTimeout = 5 * time.Second

// ErrBlobNotFound is returned by Storage.Get when nothing is stored under the key.
var ErrBlobNotFound = errors.New("blob not found")

// Storage is a key-value medium holding the serialized progress store. The
// store owns the format; media only move bytes.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// HealthChecker is implemented by media backed by a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MemoryStorage is an in-memory implementation of Storage.
type MemoryStorage struct {
	blobs map[string][]byte
	sets  int
	mu    sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory medium.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		blobs: make(map[string][]byte),
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[key] = append([]byte(nil), data...)
	m.sets++
	return nil
}

// Sets returns how many writes the medium has accepted.
func (m *MemoryStorage) Sets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets
}
