// Package observability provides Prometheus metrics and OpenTelemetry spans
// for preparation runs.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mention outcomes.
const (
	MentionResolved      = "resolved"
	MentionUnresolved    = "unresolved"
	MentionLowConfidence = "low_confidence"
)

// PipelineMetrics holds all Prometheus metrics for a preparation run.
type PipelineMetrics struct {
	registry *prometheus.Registry

	// Stage metrics
	StagesTotal  *prometheus.CounterVec
	StageSeconds *prometheus.HistogramVec

	// Table metrics
	RowsTotal      *prometheus.CounterVec
	MissingCells   *prometheus.CounterVec
	EncodedColumns *prometheus.GaugeVec

	// Identity and resolution metrics
	Identities       prometheus.Gauge
	MentionsTotal    *prometheus.CounterVec
	MatchScore       prometheus.Histogram
	PersistFailures  *prometheus.CounterVec
	CleaningOpsTotal *prometheus.CounterVec
}

// NewPipelineMetrics creates the metrics on a fresh registry.
func NewPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetricsWithRegistry(prometheus.NewRegistry())
}

// NewPipelineMetricsWithRegistry creates the metrics on reg.
func NewPipelineMetricsWithRegistry(reg *prometheus.Registry) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		registry: reg,

		StagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupprep_stages_total",
				Help: "Pipeline stages run, by outcome",
			},
			[]string{"stage", "status"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groupprep_stage_seconds",
				Help:    "Time spent per pipeline stage",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"stage"},
		),

		RowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupprep_rows_total",
				Help: "Participant rows, by direction",
			},
			[]string{"direction"},
		),
		MissingCells: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupprep_missing_cells_total",
				Help: "Derived cells left missing by row-level failures",
			},
			[]string{"stage", "column"},
		),
		EncodedColumns: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "groupprep_encoded_columns",
				Help: "Columns produced by each encoder",
			},
			[]string{"source"},
		),

		Identities: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "groupprep_identities",
				Help: "Distinct participant identities in the map",
			},
		),
		MentionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupprep_mentions_total",
				Help: "Preference mentions, by outcome",
			},
			[]string{"outcome"},
		),
		MatchScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "groupprep_match_score",
				Help:    "Similarity score of the chosen identity per mention",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		),
		PersistFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupprep_identity_persist_failures_total",
				Help: "Identity map persistence failures, by store",
			},
			[]string{"store"},
		),
		CleaningOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groupprep_cleaning_operations_total",
				Help: "Cleaning operations applied, by type",
			},
			[]string{"operation"},
		),
	}
}

// Registry returns the registry the metrics live in.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStage records a stage outcome and its latency.
func (m *PipelineMetrics) RecordStage(stage, status string, seconds float64) {
	m.StagesTotal.WithLabelValues(stage, status).Inc()
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordRows records rows read or written.
func (m *PipelineMetrics) RecordRows(direction string, n int) {
	m.RowsTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordMissing records derived cells left missing.
func (m *PipelineMetrics) RecordMissing(stage, column string, n int) {
	if n > 0 {
		m.MissingCells.WithLabelValues(stage, column).Add(float64(n))
	}
}

// SetEncodedColumns sets the number of columns an encoder produced.
func (m *PipelineMetrics) SetEncodedColumns(source string, n int) {
	m.EncodedColumns.WithLabelValues(source).Set(float64(n))
}

// RecordMention records one resolved or unresolved mention.
func (m *PipelineMetrics) RecordMention(outcome string, score int) {
	m.MentionsTotal.WithLabelValues(outcome).Inc()
	if outcome != MentionUnresolved {
		m.MatchScore.Observe(float64(score))
	}
}

// RecordPersistFailure records a failed identity map save.
func (m *PipelineMetrics) RecordPersistFailure(store string) {
	m.PersistFailures.WithLabelValues(store).Inc()
}

// RecordCleaning records a cleaning operation.
func (m *PipelineMetrics) RecordCleaning(operation string) {
	m.CleaningOpsTotal.WithLabelValues(operation).Inc()
}

// WriteTextfile writes all metrics to path in the Prometheus text format,
// for pickup by a node exporter textfile collector.
func (m *PipelineMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
