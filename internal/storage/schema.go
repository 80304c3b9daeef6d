package storage

import (
	"context"
	"fmt"
)

func schemaStatements(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		`CREATE TABLE IF NOT EXISTS documents (
  doc_id      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  doc_name    TEXT NOT NULL,
  sha256      TEXT NOT NULL UNIQUE,
  path        TEXT NOT NULL DEFAULT '',
  status      TEXT NOT NULL DEFAULT 'pending',
  fail_reason TEXT,
  page_count  INT NOT NULL DEFAULT 0,
  chunk_count INT NOT NULL DEFAULT 0,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
  chunk_id    UUID PRIMARY KEY,
  doc_id      UUID NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
  page_number INT NOT NULL,
  chunk_index INT NOT NULL,
  text        TEXT NOT NULL,
  start_char  INT NOT NULL DEFAULT 0,
  end_char    INT NOT NULL DEFAULT 0,
  embedding   vector(%d),
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (doc_id, page_number, chunk_index)
)`, dim),
		`CREATE INDEX IF NOT EXISTS chunks_doc_page_idx ON chunks (doc_id, page_number, chunk_index)`,
		`CREATE TABLE IF NOT EXISTS sessions (
  session_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  title      TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`CREATE TABLE IF NOT EXISTS session_messages (
  message_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  session_id UUID NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
  role       TEXT NOT NULL,
  content    TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
)`,
		`CREATE INDEX IF NOT EXISTS session_messages_session_idx ON session_messages (session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS session_summaries (
  session_id UUID PRIMARY KEY REFERENCES sessions(session_id) ON DELETE CASCADE,
  summary    TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`CREATE TABLE IF NOT EXISTS llm_calls (
  call_id       UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  operation     TEXT NOT NULL,
  doc_id        UUID,
  session_id    UUID,
  mode          TEXT,
  provider_name TEXT NOT NULL,
  model         TEXT NOT NULL,
  status        TEXT NOT NULL,
  error_type    TEXT,
  abstained     BOOLEAN NOT NULL DEFAULT FALSE,
  latency_ms    BIGINT NOT NULL DEFAULT 0,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	}
}

// Migrate creates the schema if it is missing. It is safe to run on every start.
func (d *DB) Migrate(ctx context.Context, embedDim int) error {
	if embedDim <= 0 {
		return fmt.Errorf("migrate: invalid embedding dimension %d", embedDim)
	}
	for _, stmt := range schemaStatements(embedDim) {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
