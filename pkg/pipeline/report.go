package pipeline

import (
	"time"

	"github.com/otherjamesbrown/groupprep/pkg/identity"
	"github.com/otherjamesbrown/groupprep/pkg/resolver"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// Cleaning operation types.
const (
	OpDropColumn   = "drop_column"
	OpRenameColumn = "rename_column"
	OpFillMissing  = "fill_missing"
)

// CleaningOperation records one change the clean stage made to the raw export.
type CleaningOperation struct {
	Column    string `json:"column" yaml:"column"`
	Operation string `json:"operation" yaml:"operation"`
	Reason    string `json:"reason" yaml:"reason"`
	NewValue  string `json:"new_value,omitempty" yaml:"new_value,omitempty"`
	// Rows lists the affected rows for cell-level operations.
	Rows []int `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// RowIssue is a row-level failure. The row's derived value is missing and the
// run continues.
type RowIssue struct {
	Row    int    `json:"row" yaml:"row"`
	Stage  string `json:"stage" yaml:"stage"`
	Column string `json:"column" yaml:"column"`
	Reason string `json:"reason" yaml:"reason"`
}

// MentionStats counts preference mentions by outcome. LowConfidence mentions
// are still resolved; the count only reflects the configured min score.
type MentionStats struct {
	Total         int `json:"total" yaml:"total"`
	Resolved      int `json:"resolved" yaml:"resolved"`
	LowConfidence int `json:"low_confidence" yaml:"low_confidence"`
	Unresolved    int `json:"unresolved" yaml:"unresolved"`
}

// Report summarises a run.
type Report struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Input     string        `json:"input,omitempty" yaml:"input,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	RowsIn     int      `json:"rows_in" yaml:"rows_in"`
	RowsOut    int      `json:"rows_out" yaml:"rows_out"`
	Columns    []string `json:"columns" yaml:"columns"`
	Identities int      `json:"identities" yaml:"identities"`

	// EncodedColumns maps each encoded source column to the columns it produced.
	EncodedColumns map[string][]string `json:"encoded_columns" yaml:"encoded_columns"`

	Mentions        MentionStats        `json:"mentions" yaml:"mentions"`
	CleaningOps     []CleaningOperation `json:"cleaning_operations" yaml:"cleaning_operations"`
	RowIssues       []RowIssue          `json:"row_issues,omitempty" yaml:"row_issues,omitempty"`
	PersistFailures []string            `json:"persist_failures,omitempty" yaml:"persist_failures,omitempty"`

	// Stages lists the stages that completed, in order.
	Stages []string `json:"stages" yaml:"stages"`
}

// Result is the outcome of Run.
type Result struct {
	Table      *table.Table
	Identities *identity.Map
	// Matches holds, per row, the resolution of each preference mention.
	Matches [][]resolver.Match
	Report  *Report
}
