package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to a postgres database and makes sure that the
// properties table exists.
func NewPostgresStore(ctx context.Context, connStr string) (PropertyStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}

	_, err = pool.Exec(ctx, schemaSQL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create postgres schema: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (p *postgresStore) Store(ctx context.Context, interfaceName, path string, value types.Value) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO properties (interface, path, value, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (interface, path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		interfaceName, path, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store property %s%s: %w", interfaceName, path, err)
	}

	return nil
}

func (p *postgresStore) Load(ctx context.Context, interfaceName, path string) (types.Value, bool, error) {
	var data string

	err := p.pool.QueryRow(ctx,
		`SELECT value FROM properties WHERE interface = $1 AND path = $2`,
		interfaceName, path,
	).Scan(&data)

	if errors.Is(err, pgx.ErrNoRows) {
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

func (p *postgresStore) Delete(ctx context.Context, interfaceName, path string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM properties WHERE interface = $1 AND path = $2`, interfaceName, path)
	if err != nil {
		return fmt.Errorf("failed to delete property %s%s: %w", interfaceName, path, err)
	}
	return nil
}

func (p *postgresStore) Clear(ctx context.Context, interfaceName string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM properties WHERE interface = $1`, interfaceName)
	if err != nil {
		return fmt.Errorf("failed to clear properties of %s: %w", interfaceName, err)
	}
	return nil
}

func (p *postgresStore) Close() error {
	p.pool.Close()
	return nil
}
