package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/receptionist/internal/session"
)

// PostgresDirectory reads receptionist accounts from PostgreSQL.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(ctx context.Context, databaseURL string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initDirectorySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresDirectory{pool: pool}, nil
}

func initDirectorySchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS receptionist_numbers (
			phone_number TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			config JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_receptionist_numbers_owner ON receptionist_numbers (owner_id);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Upsert registers a number. Used by seeding and tests.
func (d *PostgresDirectory) Upsert(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("encode agent config: %w", err)
	}
	_, err = d.pool.Exec(ctx,
		`INSERT INTO receptionist_numbers (phone_number, owner_id, config, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (phone_number) DO UPDATE SET owner_id = EXCLUDED.owner_id, config = EXCLUDED.config, updated_at = now()`,
		NormalizeNumber(e.PhoneNumber),
		e.OwnerID,
		raw,
	)
	if err != nil {
		return fmt.Errorf("upsert number: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) LookupByCalledNumber(ctx context.Context, number string) (session.AgentConfig, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx,
		`SELECT config FROM receptionist_numbers WHERE phone_number=$1`,
		NormalizeNumber(number),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.AgentConfig{}, ErrNotFound
	}
	if err != nil {
		return session.AgentConfig{}, fmt.Errorf("lookup number: %w", err)
	}

	cfg := session.DefaultAgentConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return session.AgentConfig{}, fmt.Errorf("decode agent config: %w", err)
	}
	return cfg, nil
}

func (d *PostgresDirectory) ResolveOwnerID(ctx context.Context, number string) (string, error) {
	var owner string
	err := d.pool.QueryRow(ctx,
		`SELECT owner_id FROM receptionist_numbers WHERE phone_number=$1`,
		NormalizeNumber(number),
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve owner: %w", err)
	}
	return owner, nil
}

func (d *PostgresDirectory) Close() error {
	d.pool.Close()
	return nil
}
