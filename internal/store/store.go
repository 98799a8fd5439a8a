// Package store is the durable Postgres archive for finished
// investigations. The live session store owns in-flight state; this
// archive exists for later review and reporting, so every write is
// idempotent and safe to replay after a crashed run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/osintlab/robin/config"
	"github.com/osintlab/robin/session/session_models"
)

type Store struct {
	DB *sql.DB
}

// New opens the archive connection and bootstraps the schema.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	st := &Store{DB: db}
	if err := st.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) Close() error { return s.DB.Close() }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS investigations (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	investigation_id TEXT NOT NULL REFERENCES investigations(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS tool_executions (
	id TEXT PRIMARY KEY,
	investigation_id TEXT NOT NULL REFERENCES investigations(id),
	tool TEXT NOT NULL,
	input JSONB,
	output TEXT,
	status TEXT NOT NULL,
	error TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	duration_ms BIGINT
)`,
	`CREATE TABLE IF NOT EXISTS subagent_results (
	investigation_id TEXT NOT NULL REFERENCES investigations(id),
	agent_type TEXT NOT NULL,
	analysis TEXT,
	success BOOLEAN NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	duration_ms BIGINT,
	PRIMARY KEY (investigation_id, agent_type, started_at)
)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_investigation ON messages(investigation_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_investigation ON tool_executions(investigation_id, started_at)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrapping schema: %w", err)
		}
	}
	return nil
}

func (s *Store) ArchiveInvestigation(ctx context.Context, inv session_models.Investigation) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO investigations (id, query, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at;
`, inv.ID, inv.Query, string(inv.Status), inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("archiving investigation %s: %w", inv.ID, err)
	}
	return nil
}

func (s *Store) ArchiveMessage(ctx context.Context, invID string, msg session_models.Message) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO messages (id, investigation_id, role, content, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO NOTHING;
`, msg.ID, invID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("archiving message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *Store) ArchiveToolExecution(ctx context.Context, invID string, exec session_models.ToolExecution) error {
	input, err := json.Marshal(exec.Input)
	if err != nil {
		return fmt.Errorf("encoding input for execution %s: %w", exec.ID, err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO tool_executions (id, investigation_id, tool, input, output, status, error, started_at, completed_at, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  output = EXCLUDED.output,
  status = EXCLUDED.status,
  error = EXCLUDED.error,
  completed_at = EXCLUDED.completed_at,
  duration_ms = EXCLUDED.duration_ms;
`, exec.ID, invID, exec.Tool, input, exec.Output, exec.Status, exec.Error, exec.StartedAt, exec.CompletedAt, exec.DurationMS)
	if err != nil {
		return fmt.Errorf("archiving execution %s: %w", exec.ID, err)
	}
	return nil
}

func (s *Store) ArchiveSubAgentResult(ctx context.Context, invID string, res session_models.SubAgentResult) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO subagent_results (investigation_id, agent_type, analysis, success, started_at, completed_at, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (investigation_id, agent_type, started_at) DO UPDATE SET
  analysis = EXCLUDED.analysis,
  success = EXCLUDED.success,
  completed_at = EXCLUDED.completed_at,
  duration_ms = EXCLUDED.duration_ms;
`, invID, res.AgentType, res.Analysis, res.Success, res.StartedAt, res.CompletedAt, res.DurationMS)
	if err != nil {
		return fmt.Errorf("archiving %s result for %s: %w", res.AgentType, invID, err)
	}
	return nil
}

// ListArchived returns archived investigations, newest first.
func (s *Store) ListArchived(ctx context.Context, limit int) ([]session_models.Investigation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, query, status, created_at, updated_at
FROM investigations
ORDER BY created_at DESC
LIMIT $1;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	defer rows.Close()

	var out []session_models.Investigation
	for rows.Next() {
		var inv session_models.Investigation
		var status string
		if err := rows.Scan(&inv.ID, &inv.Query, &status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}
		inv.Status = session_models.InvestigationStatus(status)
		out = append(out, inv)
	}
	return out, rows.Err()
}
