package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) a property database in the
// given file. Use ":memory:" for a throwaway store.
func NewSQLiteStore(ctx context.Context, dataSource string) (PropertyStore, error) {
	if dataSource == "" {
		return nil, fmt.Errorf("sqlite storage requires a data source")
	}

	db, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// a :memory: database only lives as long as its connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Store(ctx context.Context, interfaceName, path string, value types.Value) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO properties (interface, path, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (interface, path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		interfaceName, path, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store property %s%s: %w", interfaceName, path, err)
	}

	return nil
}

func (s *sqliteStore) Load(ctx context.Context, interfaceName, path string) (types.Value, bool, error) {
	var data string

	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM properties WHERE interface = ? AND path = ?`,
		interfaceName, path,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load property %s%s: %w", interfaceName, path, err)
	}

	value, err := decode(data)
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (s *sqliteStore) Delete(ctx context.Context, interfaceName, path string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM properties WHERE interface = ? AND path = ?`,
		interfaceName, path,
	)
	if err != nil {
		return fmt.Errorf("failed to delete property %s%s: %w", interfaceName, path, err)
	}
	return nil
}

func (s *sqliteStore) Clear(ctx context.Context, interfaceName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE interface = ?`, interfaceName)
	if err != nil {
		return fmt.Errorf("failed to clear properties of %s: %w", interfaceName, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
