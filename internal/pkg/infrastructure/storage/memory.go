package storage

import (
	"context"
	"sync"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
)

type propertyKey struct {
	interfaceName string
	path          string
}

type memoryStore struct {
	mu         sync.RWMutex
	properties map[propertyKey]types.Value
}

func NewMemoryStore() PropertyStore {
	return &memoryStore{
		properties: make(map[propertyKey]types.Value),
	}
}

func (m *memoryStore) Store(ctx context.Context, interfaceName, path string, value types.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.properties[propertyKey{interfaceName, path}] = value
	return nil
}

func (m *memoryStore) Load(ctx context.Context, interfaceName, path string) (types.Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.properties[propertyKey{interfaceName, path}]
	return value, ok, nil
}

func (m *memoryStore) Delete(ctx context.Context, interfaceName, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.properties, propertyKey{interfaceName, path})
	return nil
}

func (m *memoryStore) Clear(ctx context.Context, interfaceName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.properties {
		if key.interfaceName == interfaceName {
			delete(m.properties, key)
		}
	}
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
