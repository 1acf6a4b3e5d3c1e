// Package pipeline prepares a raw survey export for group assignment.
//
// Run applies the stages in a fixed order on an immutable table:
// clean, time_slots, priorities, value_maps, identity, preferences.
// Fatal errors (missing columns, unknown categories, unreadable
// configuration) abort the run. Row-level problems leave the derived value
// missing, are logged at warn and are listed in the Report.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/groupprep/config"
	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/identity"
	"github.com/otherjamesbrown/groupprep/pkg/logging"
	"github.com/otherjamesbrown/groupprep/pkg/observability"
	"github.com/otherjamesbrown/groupprep/pkg/similarity"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// Stage names.
const (
	StageClean       = "clean"
	StageTimeSlots   = "time_slots"
	StagePriorities  = "priorities"
	StageValueMaps   = "value_maps"
	StageIdentity    = "identity"
	StagePreferences = "preferences"
)

// IDColumn holds each row's identity after the identity stage.
const IDColumn = "id"

type namedStore struct {
	name  string
	store identity.Store
}

// Pipeline runs preparation passes with a fixed configuration.
type Pipeline struct {
	cfg     *config.PipelineConfig
	scorer  similarity.Scorer
	mapping map[string]string
	stores  []namedStore
	logger  logging.Logger
	metrics *observability.PipelineMetrics
	tracer  *observability.Tracer
	runID   func() string
	now     func() time.Time
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics records run metrics into m.
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithStore adds an identity map store. Stores are saved in the order added.
func WithStore(name string, s identity.Store) Option {
	return func(p *Pipeline) {
		p.stores = append(p.stores, namedStore{name: name, store: s})
	}
}

// WithColumnMapping sets the export-to-internal column names, overriding
// column_mapping_path.
func WithColumnMapping(mapping map[string]string) Option {
	return func(p *Pipeline) {
		p.mapping = mapping
	}
}

// WithRunID overrides run ID generation.
func WithRunID(fn func() string) Option {
	return func(p *Pipeline) {
		p.runID = fn
	}
}

// New validates cfg and creates a pipeline.
func New(cfg *config.PipelineConfig, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := similarity.ParseMode(cfg.Similarity.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gperrors.ErrValidation, err)
	}

	p := &Pipeline{
		cfg:     cfg,
		scorer:  similarity.Scorer{Mode: mode, Fold: cfg.Similarity.Fold},
		logger:  logging.NewNopLogger(),
		metrics: observability.NewPipelineMetrics(),
		tracer:  observability.NewTracer(),
		runID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.With(logging.F("component", "pipeline"))
	return p, nil
}

// Metrics returns the metrics the pipeline records into.
func (p *Pipeline) Metrics() *observability.PipelineMetrics {
	return p.metrics
}

type stageFunc func(ctx context.Context, r *run, t *table.Table) (*table.Table, error)

// run carries per-run state between stages.
type run struct {
	result *Result
	report *Report
	logger logging.Logger
}

func (r *run) issue(stage, column, reason string, rows []int) {
	for _, row := range rows {
		r.report.RowIssues = append(r.report.RowIssues, RowIssue{Row: row, Stage: stage, Column: column, Reason: reason})
	}
	if len(rows) > 0 {
		r.logger.Warn("Row-level values left missing",
			logging.F("stage", stage),
			logging.F("column", column),
			logging.F("reason", reason),
			logging.F("rows", len(rows)))
	}
}

// Run prepares raw. The input table is not modified. On failure the
// returned Result carries the Report of the stages that completed, a nil
// Table, and the error is a *errors.PipelineError.
func (p *Pipeline) Run(ctx context.Context, raw *table.Table, input string) (*Result, error) {
	started := p.now()
	report := &Report{
		RunID:          p.runID(),
		Input:          input,
		StartedAt:      started,
		RowsIn:         raw.Len(),
		EncodedColumns: map[string][]string{},
	}
	result := &Result{Report: report}

	ctx = context.WithValue(ctx, logging.RunIDKey, report.RunID)
	ctx, span := p.tracer.StartRunSpan(ctx, report.RunID, input)
	defer span.End()
	runSpan := observability.NewSpanHelper(span)

	r := &run{result: result, report: report, logger: p.logger.WithContext(ctx)}
	r.logger.Info("Starting preparation run",
		logging.F("input", input),
		logging.F("rows", raw.Len()),
		logging.F("columns", len(raw.Columns())))
	p.metrics.RecordRows("in", raw.Len())

	stages := []struct {
		name string
		fn   stageFunc
	}{
		{StageClean, p.clean},
		{StageTimeSlots, p.encodeTimeSlots},
		{StagePriorities, p.encodePriorities},
		{StageValueMaps, p.mapValues},
		{StageIdentity, p.identify},
		{StagePreferences, p.resolvePreferences},
	}

	t := raw
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			pe := gperrors.ClassifyError(err, s.name)
			runSpan.SetError(pe, string(pe.Code))
			report.Duration = p.now().Sub(started)
			return result, pe
		}

		next, err := p.runStage(ctx, r, s.name, s.fn, t)
		if err != nil {
			pe := gperrors.ClassifyError(err, s.name)
			runSpan.SetError(pe, string(pe.Code))
			report.Duration = p.now().Sub(started)
			r.logger.Error("Preparation run failed",
				logging.Err(err),
				logging.F("stage", s.name),
				logging.F("code", string(pe.Code)))
			return result, pe
		}
		t = next
		report.Stages = append(report.Stages, s.name)
	}

	result.Table = t
	report.RowsOut = t.Len()
	report.Columns = t.Columns()
	report.Duration = p.now().Sub(started)
	p.metrics.RecordRows("out", t.Len())
	runSpan.SetShape(t.Len(), len(report.Columns))
	runSpan.SetSuccess()

	r.logger.Info("Preparation run completed",
		logging.F("rows", t.Len()),
		logging.F("columns", len(report.Columns)),
		logging.F("identities", report.Identities),
		logging.F("row_issues", len(report.RowIssues)),
		logging.F("duration_ms", report.Duration.Milliseconds()))

	return result, nil
}

func (p *Pipeline) runStage(ctx context.Context, r *run, name string, fn stageFunc, t *table.Table) (*table.Table, error) {
	ctx = context.WithValue(ctx, logging.StageKey, name)
	ctx, span := p.tracer.StartStageSpan(ctx, name)
	defer span.End()
	h := observability.NewSpanHelper(span)

	stageRun := &run{result: r.result, report: r.report, logger: p.logger.WithContext(ctx)}
	issuesBefore := len(r.report.RowIssues)

	stageRun.logger.Debug("Stage started",
		logging.F("rows", t.Len()),
		logging.F("columns", len(t.Columns())))

	start := time.Now()
	out, err := fn(ctx, stageRun, t)
	elapsed := time.Since(start)

	if err != nil {
		pe := gperrors.ClassifyError(err, name)
		h.SetError(pe, string(pe.Code))
		p.metrics.RecordStage(name, "error", elapsed.Seconds())
		return nil, pe
	}

	missing := len(r.report.RowIssues) - issuesBefore
	h.SetShape(out.Len(), len(out.Columns()))
	h.SetMissing(missing)
	h.SetSuccess()
	p.metrics.RecordStage(name, "ok", elapsed.Seconds())

	stageRun.logger.Info("Stage completed",
		logging.F("rows", out.Len()),
		logging.F("columns", len(out.Columns())),
		logging.F("missing", missing),
		logging.F("duration_ms", elapsed.Milliseconds()))
	return out, nil
}
