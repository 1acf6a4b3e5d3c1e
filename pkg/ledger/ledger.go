// Package ledger records preparation runs in PostgreSQL.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS groupprep_runs (
	id            BIGSERIAL PRIMARY KEY,
	run_id        UUID        NOT NULL UNIQUE,
	input         TEXT        NOT NULL,
	output        TEXT,
	rows          INTEGER     NOT NULL,
	identities    INTEGER     NOT NULL,
	resolved      INTEGER     NOT NULL,
	unresolved    INTEGER     NOT NULL,
	columns       TEXT[]      NOT NULL,
	duration_ms   INTEGER     NOT NULL,
	success       BOOLEAN     NOT NULL,
	error_code    TEXT,
	error_message TEXT,
	hostname      TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Client provides run ledger operations.
type Client struct {
	db *sql.DB
}

// RunEntry is one recorded run.
type RunEntry struct {
	ID           int64     `json:"id" yaml:"id"`
	RunID        string    `json:"run_id" yaml:"run_id"`
	Input        string    `json:"input" yaml:"input"`
	Output       string    `json:"output,omitempty" yaml:"output,omitempty"`
	Rows         int       `json:"rows" yaml:"rows"`
	Identities   int       `json:"identities" yaml:"identities"`
	Resolved     int       `json:"resolved" yaml:"resolved"`
	Unresolved   int       `json:"unresolved" yaml:"unresolved"`
	Columns      []string  `json:"columns" yaml:"columns"`
	DurationMs   int       `json:"duration_ms" yaml:"duration_ms"`
	Success      bool      `json:"success" yaml:"success"`
	ErrorCode    string    `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Hostname     string    `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// Open connects to the ledger database with lib/pq.
func Open(connStr string) (*Client, error) {
	if connStr == "" {
		return nil, fmt.Errorf("ledger database not configured")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Client {
	return &Client{db: db}
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// EnsureSchema creates the runs table if needed.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// Record inserts a run. Error messages are truncated to 500 characters.
func (c *Client) Record(ctx context.Context, e *RunEntry) error {
	hostname := e.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	columns := e.Columns
	if columns == nil {
		columns = []string{}
	}

	query := `INSERT INTO groupprep_runs
		(run_id, input, output, rows, identities, resolved, unresolved, columns,
		 duration_ms, success, error_code, error_message, hostname)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := c.db.ExecContext(ctx, query,
		e.RunID,
		e.Input,
		nullIfEmpty(e.Output),
		e.Rows,
		e.Identities,
		e.Resolved,
		e.Unresolved,
		pq.Array(columns),
		e.DurationMs,
		e.Success,
		nullIfEmpty(e.ErrorCode),
		nullIfEmpty(truncate(e.ErrorMessage, 500)),
		nullIfEmpty(hostname),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", e.RunID, err)
	}
	return nil
}

// History returns the most recent runs, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, run_id, input, output, rows, identities, resolved, unresolved,
		columns, duration_ms, success, error_code, error_message, hostname, created_at
		FROM groupprep_runs ORDER BY created_at DESC LIMIT $1`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var output, code, msg, host sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.RunID,
			&e.Input,
			&output,
			&e.Rows,
			&e.Identities,
			&e.Resolved,
			&e.Unresolved,
			pq.Array(&e.Columns),
			&e.DurationMs,
			&e.Success,
			&code,
			&msg,
			&host,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		e.Output = output.String
		e.ErrorCode = code.String
		e.ErrorMessage = msg.String
		e.Hostname = host.String
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return entries, nil
}

// truncate truncates a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// nullIfEmpty returns nil if s is empty, otherwise returns s.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
