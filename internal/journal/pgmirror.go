// Optional Postgres mirror for the journal, giving operators a query-able
// side copy of the hash-chained record. Never the source of truth — the
// JSONL file is.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGMirror inserts journal records into a gateway_journal table.
type PGMirror struct {
	pool *pgxpool.Pool
}

// NewPGMirror connects to dsn and ensures the mirror table exists. Returns
// nil, err if the connection or schema setup fails — callers should treat
// that as "mirroring unavailable" and run without a Mirror rather than
// fail gateway startup, since the JSONL file remains the source of truth.
func NewPGMirror(ctx context.Context, dsn string) (*PGMirror, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal pg mirror: connect: %w", err)
	}

	createCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = pool.Exec(createCtx, `
		CREATE TABLE IF NOT EXISTS gateway_journal (
			hash       TEXT PRIMARY KEY,
			prev       TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			type       TEXT NOT NULL,
			agent      TEXT,
			provider   TEXT,
			intent     TEXT,
			status     TEXT,
			verdict    TEXT,
			extra      JSONB
		)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal pg mirror: create table: %w", err)
	}

	return &PGMirror{pool: pool}, nil
}

// Insert writes one record to the mirror table. Best-effort: the caller
// (Journal.Record) ignores the error beyond flagging Mirrored=false.
func (m *PGMirror) Insert(rec Record) error {
	extraJSON, err := json.Marshal(rec.Extra)
	if err != nil {
		extraJSON = []byte("{}")
	}

	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = m.pool.Exec(ctx, `
		INSERT INTO gateway_journal (hash, prev, ts, type, agent, provider, intent, status, verdict, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hash) DO NOTHING
	`, rec.Hash, rec.Prev, ts, rec.Type, rec.Agent, rec.Provider, rec.Intent, rec.Status, rec.Verdict, extraJSON)
	return err
}

// Close releases the connection pool.
func (m *PGMirror) Close() {
	m.pool.Close()
}
