package conversations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists finished conversations in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			called_number TEXT NOT NULL,
			caller_number TEXT NOT NULL,
			business_name TEXT NOT NULL DEFAULT '',
			transcript JSONB NOT NULL DEFAULT '[]'::jsonb,
			turns INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_seconds BIGINT NOT NULL DEFAULT 0,
			end_reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_owner_started ON conversations (owner_id, started_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Append inserts the record. A second record for the same call ID is ignored
// so a retried finalize cannot produce a duplicate row.
func (s *PostgresStore) Append(ctx context.Context, record Record) error {
	if err := record.validate(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	transcript, err := json.Marshal(record.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (id, call_id, owner_id, called_number, caller_number, business_name,
			transcript, turns, started_at, ended_at, duration_seconds, end_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (call_id) DO NOTHING`,
		record.ID,
		record.CallID,
		record.OwnerID,
		record.CalledNumber,
		record.CallerNumber,
		record.BusinessName,
		transcript,
		record.Turns,
		record.StartedAt,
		record.EndedAt,
		record.DurationSeconds,
		string(record.EndReason),
	)
	if err != nil {
		return fmt.Errorf("append conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, owner_id, called_number, caller_number, business_name,
			transcript, turns, started_at, ended_at, duration_seconds, end_reason
		 FROM conversations WHERE owner_id=$1 ORDER BY started_at DESC LIMIT $2`,
		ownerID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r          Record
			transcript []byte
			reason     string
		)
		if err := rows.Scan(&r.ID, &r.CallID, &r.OwnerID, &r.CalledNumber, &r.CallerNumber, &r.BusinessName,
			&transcript, &r.Turns, &r.StartedAt, &r.EndedAt, &r.DurationSeconds, &reason); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		if err := json.Unmarshal(transcript, &r.Transcript); err != nil {
			return nil, fmt.Errorf("decode transcript for %s: %w", r.CallID, err)
		}
		r.EndReason = EndReason(reason)
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
