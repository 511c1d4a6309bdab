package repository

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// KV is a flat key-value settings store.
type KV interface {
	// Get returns the stored values for keys. Missing keys are absent from
	// the result.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	// Set writes all values at once.
	Set(ctx context.Context, values map[string]string) error
}

// UnavailableError reports that the backing store could not serve an
// operation.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("settings store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

var _ error = (*UnavailableError)(nil)

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// MemoryKV keeps settings in process memory.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := m.values[key]; ok {
			result[key] = v
		}
	}
	return result, nil
}

func (m *MemoryKV) Set(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	maps.Copy(m.values, values)
	return nil
}

var _ KV = (*MemoryKV)(nil)
