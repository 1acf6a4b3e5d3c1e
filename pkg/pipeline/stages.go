package pipeline

import (
	"context"
	"errors"
	"sort"

	"github.com/otherjamesbrown/groupprep/config"
	"github.com/otherjamesbrown/groupprep/pkg/encoding"
	"github.com/otherjamesbrown/groupprep/pkg/identity"
	"github.com/otherjamesbrown/groupprep/pkg/logging"
	"github.com/otherjamesbrown/groupprep/pkg/observability"
	"github.com/otherjamesbrown/groupprep/pkg/resolver"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// clean drops export-only columns, applies the column mapping and fills
// missing preference and time cells.
func (p *Pipeline) clean(_ context.Context, r *run, t *table.Table) (*table.Table, error) {
	for _, c := range p.cfg.DropColumns {
		if t.Has(c) {
			p.record(r, CleaningOperation{Column: c, Operation: OpDropColumn, Reason: "export_only_column"})
		}
	}
	t = t.Drop(p.cfg.DropColumns...)

	mapping := p.mapping
	if mapping == nil && p.cfg.ColumnMappingPath != "" {
		var err error
		if mapping, err = config.LoadColumnMapping(p.cfg.ColumnMappingPath); err != nil {
			return nil, err
		}
	}
	if len(mapping) > 0 {
		from := make([]string, 0, len(mapping))
		for k := range mapping {
			from = append(from, k)
		}
		sort.Strings(from)
		for _, k := range from {
			if t.Has(k) && mapping[k] != "" && mapping[k] != k {
				p.record(r, CleaningOperation{Column: k, Operation: OpRenameColumn, Reason: "column_mapping", NewValue: mapping[k]})
			}
		}
		var err error
		if t, err = t.Rename(mapping); err != nil {
			return nil, err
		}
	}

	var err error
	if t, err = p.fill(r, t, p.cfg.PreferenceColumn, "", "no_preferences_given"); err != nil {
		return nil, err
	}
	for _, c := range p.cfg.TimeColumns {
		if t, err = p.fill(r, t, c, encoding.NoAvailability, "no_availability_given"); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// fill replaces missing cells of column with value. Absent columns are left
// for the stage that needs them to report.
func (p *Pipeline) fill(r *run, t *table.Table, column, value, reason string) (*table.Table, error) {
	if column == "" || !t.Has(column) {
		return t, nil
	}
	var rows []int
	out, err := t.Map(column, func(row int, c table.Cell) table.Cell {
		if !c.IsMissing() {
			return c
		}
		rows = append(rows, row)
		return table.String(value)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		p.record(r, CleaningOperation{Column: column, Operation: OpFillMissing, Reason: reason, NewValue: value, Rows: rows})
	}
	return out, nil
}

func (p *Pipeline) record(r *run, op CleaningOperation) {
	r.report.CleaningOps = append(r.report.CleaningOps, op)
	p.metrics.RecordCleaning(op.Operation)
	r.logger.Debug("Cleaning operation",
		logging.F("column", op.Column),
		logging.F("operation", op.Operation),
		logging.F("reason", op.Reason),
		logging.F("rows", len(op.Rows)))
}

func (p *Pipeline) encodeTimeSlots(_ context.Context, r *run, t *table.Table) (*table.Table, error) {
	if len(p.cfg.TimeColumns) == 0 {
		return t, nil
	}
	out, err := encoding.EncodeTimeSlots(t, p.cfg.Days, p.cfg.TimeColumns, true)
	if err != nil {
		return nil, err
	}
	for _, slot := range p.cfg.TimeColumns {
		cols := make([]string, len(p.cfg.Days))
		for i, d := range p.cfg.Days {
			cols[i] = encoding.TimeSlotColumn(slot, d)
		}
		r.report.EncodedColumns[slot] = cols
		p.metrics.SetEncodedColumns(slot, len(cols))
	}
	return out, nil
}

func (p *Pipeline) encodePriorities(_ context.Context, r *run, t *table.Table) (*table.Table, error) {
	for _, field := range p.cfg.Priorities {
		opts := encoding.DummyOptions{
			RealWeight:     field.Weight,
			SentinelWeight: p.cfg.SentinelWeight,
			Sentinel:       p.cfg.Sentinel,
			DropOriginal:   true,
		}
		if len(field.Categories) > 0 {
			opts.Basis = encoding.NewBasis(field.Categories, p.cfg.Sentinel, field.Weight, p.cfg.SentinelWeight)
		}

		res, err := encoding.DummyEncode(t, field.Column, opts)
		if err != nil {
			return nil, err
		}
		t = res.Table
		r.report.EncodedColumns[field.Column] = res.Columns
		p.metrics.SetEncodedColumns(field.Column, len(res.Columns))
		p.metrics.RecordMissing(StagePriorities, field.Column, len(res.MissingRows))
		r.issue(StagePriorities, field.Column, "missing_answer", res.MissingRows)

		r.logger.Debug("Encoded priority field",
			logging.F("column", field.Column),
			logging.F("categories", res.Basis.Categories),
			logging.F("weight", field.Weight))
	}
	return t, nil
}

func (p *Pipeline) mapValues(_ context.Context, r *run, t *table.Table) (*table.Table, error) {
	columns := make([]string, 0, len(p.cfg.ValueMaps))
	for c := range p.cfg.ValueMaps {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	for _, c := range columns {
		if !t.Has(c) {
			r.logger.Debug("Skipping value map for absent column", logging.F("column", c))
			continue
		}
		out, unmapped, err := encoding.MapValues(t, c, p.cfg.ValueMaps[c])
		if err != nil {
			return nil, err
		}
		t = out
		p.metrics.RecordMissing(StageValueMaps, c, len(unmapped))
		r.issue(StageValueMaps, c, "unmapped_value", unmapped)
	}
	return t, nil
}

// identify builds the identity map, persists it, attaches the id column and
// drops the name columns.
func (p *Pipeline) identify(ctx context.Context, r *run, t *table.Table) (*table.Table, error) {
	a, err := identity.Build(t, p.cfg.NameFields, identity.BuildOptions{Disambiguate: p.cfg.Identity.Disambiguate})
	if err != nil {
		return nil, err
	}

	r.result.Identities = a.Map
	r.report.Identities = a.Map.Len()
	p.metrics.Identities.Set(float64(a.Map.Len()))
	p.metrics.RecordMissing(StageIdentity, IDColumn, len(a.Skipped))
	r.issue(StageIdentity, IDColumn, "missing_name", a.Skipped)

	for _, s := range p.stores {
		if !identity.Persist(ctx, s.store, a.Map, r.logger.With(logging.F("store", s.name))) {
			r.report.PersistFailures = append(r.report.PersistFailures, s.name)
			p.metrics.RecordPersistFailure(s.name)
		}
	}

	ids := make([]table.Cell, t.Len())
	for row, id := range a.RowIDs {
		if id != 0 {
			ids[row] = table.Int(id)
		}
	}
	out, err := t.WithColumn(IDColumn, ids)
	if err != nil {
		return nil, err
	}
	return out.Drop(p.cfg.NameFields...), nil
}

// resolvePreferences replaces the preference text with a list of resolved
// identities. Empty mentions, and mentions on an empty map, are missing.
func (p *Pipeline) resolvePreferences(ctx context.Context, r *run, t *table.Table) (*table.Table, error) {
	col, err := t.Column(p.cfg.PreferenceColumn)
	if err != nil {
		return nil, err
	}
	if r.result.Identities == nil {
		return nil, errors.New("identity map not built")
	}

	lists := make([][]string, len(col))
	for row, c := range col {
		if !c.IsMissing() {
			lists[row] = resolver.SplitMentions(c.Text(), p.cfg.PreferenceSeparator)
		}
	}

	res := resolver.New(r.result.Identities, p.scorer)
	matches, err := res.ResolveAll(ctx, lists, resolver.Options{Concurrency: p.cfg.Similarity.Concurrency})
	if err != nil {
		return nil, err
	}
	r.result.Matches = matches

	stats := &r.report.Mentions
	cells := make([]table.Cell, len(col))
	for row, ms := range matches {
		if col[row].IsMissing() {
			continue
		}
		items := make([]table.Cell, len(ms))
		for i, m := range ms {
			stats.Total++
			switch {
			case m.ID == 0:
				stats.Unresolved++
				p.metrics.RecordMention(observability.MentionUnresolved, 0)
				continue
			case p.cfg.Similarity.MinScore > 0 && !m.Confident(p.cfg.Similarity.MinScore):
				stats.LowConfidence++
				p.metrics.RecordMention(observability.MentionLowConfidence, m.Score)
				r.logger.Warn("Low-confidence preference match",
					logging.F("row", row),
					logging.F("mention", m.Mention),
					logging.F("key", m.Key),
					logging.F("score", m.Score))
			default:
				stats.Resolved++
				p.metrics.RecordMention(observability.MentionResolved, m.Score)
			}
			items[i] = table.Int(m.ID)
		}
		cells[row] = table.List(items...)
	}

	out := t
	if p.cfg.PreferenceOutput != p.cfg.PreferenceColumn {
		out = out.Drop(p.cfg.PreferenceColumn)
	}
	out, err = out.WithColumn(p.cfg.PreferenceOutput, cells)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Resolved preferences",
		logging.F("mentions", stats.Total),
		logging.F("resolved", stats.Resolved),
		logging.F("low_confidence", stats.LowConfidence),
		logging.F("unresolved", stats.Unresolved))
	return out, nil
}
