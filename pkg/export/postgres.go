// Package export writes prepared feature tables to PostgreSQL.
//
// Every row is stored as a JSONB document keyed by run and row index, so the
// table schema does not depend on which categories a run observed:
//
//	CREATE TABLE participant_features (
//	    run_id         UUID    NOT NULL,
//	    row_index      INTEGER NOT NULL,
//	    participant_id INTEGER,
//	    features       JSONB   NOT NULL,
//	    PRIMARY KEY (run_id, row_index)
//	);
package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// IDColumn is the column copied into participant_id when present.
const IDColumn = "id"

var copyColumns = []string{"run_id", "row_index", "participant_id", "features"}

// conn is the subset of *pgxpool.Pool and *pgx.Conn the sink uses.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresSink writes feature tables with COPY.
type PostgresSink struct {
	conn  conn
	table string
}

// NewPostgresSink creates a sink writing to tableName.
func NewPostgresSink(c conn, tableName string) *PostgresSink {
	return &PostgresSink{conn: c, table: tableName}
}

// EnsureTable creates the feature table if it does not exist.
func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id UUID NOT NULL,
	row_index INTEGER NOT NULL,
	participant_id INTEGER,
	features JSONB NOT NULL,
	PRIMARY KEY (run_id, row_index)
)`, pgx.Identifier{s.table}.Sanitize())

	if _, err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// Write replaces the rows of runID with t and returns the number of rows copied.
func (s *PostgresSink) Write(ctx context.Context, runID string, t *table.Table) (int64, error) {
	rows, err := Rows(runID, t)
	if err != nil {
		return 0, err
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", pgx.Identifier{s.table}.Sanitize())
	if _, err := s.conn.Exec(ctx, del, runID); err != nil {
		return 0, fmt.Errorf("clearing run %s: %w", runID, err)
	}

	n, err := s.conn.CopyFrom(ctx, pgx.Identifier{s.table}, copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copying features into %s: %w", s.table, err)
	}
	return n, nil
}

// Rows converts t into COPY rows: run ID, row index, participant id (nil
// when absent or missing) and the JSON document of all cells.
func Rows(runID string, t *table.Table) ([][]any, error) {
	names := t.Columns()
	cols := make([][]table.Cell, len(names))
	for i, n := range names {
		cols[i], _ = t.Column(n)
	}

	out := make([][]any, t.Len())
	for row := range out {
		doc := make(map[string]any, len(names))
		var participant any
		for i, n := range names {
			c := cols[i][row]
			doc[n] = c.Value()
			if n == IDColumn && c.Kind == table.KindNumber {
				participant = int32(c.Num)
			}
		}
		features, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding row %d: %w", row, err)
		}
		out[row] = []any{runID, int32(row), participant, features}
	}
	return out, nil
}
