package storage

import (
	"context"
	"fmt"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
)

// PropertyStore persists the current value of the device's properties.
type PropertyStore interface {
	Store(ctx context.Context, interfaceName, path string, value types.Value) error
	// Load returns false if the property is not set.
	Load(ctx context.Context, interfaceName, path string) (types.Value, bool, error)
	Delete(ctx context.Context, interfaceName, path string) error
	Clear(ctx context.Context, interfaceName string) error
	Close() error
}

const (
	DriverMemory   string = "memory"
	DriverSQLite   string = "sqlite"
	DriverPostgres string = "postgres"
)

// Open returns the property store for the given driver. dsn is a file name for
// sqlite and a connection string for postgres.
func Open(ctx context.Context, driver, dsn string) (PropertyStore, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, dsn)
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn)
	}

	return nil, fmt.Errorf("unsupported storage driver %q", driver)
}

func encode(value types.Value) (string, error) {
	b, err := types.MarshalValue(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode property value: %w", err)
	}
	return string(b), nil
}

func decode(data string) (types.Value, error) {
	value, err := types.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored property value: %w", err)
	}
	return value, nil
}
