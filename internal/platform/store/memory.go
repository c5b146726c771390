package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-process Store. It is used for development and tests and
// follows the same value semantics as the remote backends.
type Memory struct {
	mu   sync.RWMutex
	root any
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(_ context.Context, path string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := getAt(m.root, splitPath(path))
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (m *Memory) Set(_ context.Context, path string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = setAt(m.root, splitPath(path), v)
	return nil
}

func (m *Memory) Push(ctx context.Context, path string, value any) (string, error) {
	key := ulid.Make().String()
	if err := m.Set(ctx, Join(strings.Trim(path, "/"), key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = setAt(m.root, splitPath(path), nil)
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}
