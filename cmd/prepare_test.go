package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/groupprep/config"
	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/identity"
	"github.com/otherjamesbrown/groupprep/pkg/ingest"
	"github.com/otherjamesbrown/groupprep/pkg/pipeline"
)

const surveyCSV = "#,first_name,last_name,time1,priority_topic1,english,personal_preferences\n" +
	"1,Ana,Lee,\"Mon, Tue\",X,Ja,\"Bob Tan, Carl Ng\"\n" +
	"2,Bob,Tan,,Y,Nein,Ana Le\n" +
	"3,Carl,Ng,Tue,Egal,Vielleicht,\n"

// mockConfig returns a small pipeline config writing its identity map into dir.
func mockConfig(dir string) *config.PipelineConfig {
	cfg := config.DefaultConfig()
	cfg.OutputFormat = config.OutputFormatJSON
	cfg.TimeColumns = []string{"time1"}
	cfg.Days = []string{"Mon", "Tue"}
	cfg.Priorities = []config.PriorityField{{Column: "priority_topic1", Weight: 3}}
	cfg.Identity.Path = filepath.Join(dir, "name_id_map.json")
	return cfg
}

func createPrepareTestDeps(cfg *config.PipelineConfig) *PrepareCommandDeps {
	deps := DefaultPrepareDeps()
	deps.LoadConfig = func(string) (*config.PipelineConfig, error) {
		return cfg, nil
	}
	deps.Password = func(string) (string, error) {
		return "", errors.New("no database in tests")
	}
	deps.LogOutput = io.Discard
	return deps
}

func writeSurvey(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "survey.csv")
	require.NoError(t, os.WriteFile(path, []byte(surveyCSV), 0o644))
	return path
}

func execute(c *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&out)
	c.SetArgs(args)
	err := c.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewPrepareCommand(t *testing.T) {
	cmd := NewPrepareCommand(nil)

	require.NotNil(t, cmd)
	assert.Equal(t, "prepare [input] [output]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	for _, name := range []string{"delimiter", "mode", "min-score", "concurrency", "disambiguate", "column-mapping", "identity-map", "metrics-textfile", "export"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "prepare should have --%s", name)
	}
}

func TestPrepare_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir)
	output := filepath.Join(dir, "out", "features.csv")
	cfg := mockConfig(dir)

	stdout, err := execute(NewPrepareCommand(createPrepareTestDeps(cfg)), input, output)
	require.NoError(t, err)

	var report pipeline.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 3, report.RowsIn)
	assert.Equal(t, 3, report.Identities)
	assert.Equal(t, pipeline.MentionStats{Total: 4, Resolved: 3, Unresolved: 1}, report.Mentions)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	features, err := ingest.ReadCSV(f, ',')
	require.NoError(t, err)

	assert.Equal(t, []string{
		"english", "time1_Mon", "time1_Tue",
		"priority_topic1_1", "priority_topic1_2",
		"id", "personal_preferences_ids",
	}, features.Columns())

	p1, err := features.Strings("priority_topic1_1")
	require.NoError(t, err)
	p2, err := features.Strings("priority_topic1_2")
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "0", "3"}, p1)
	assert.Equal(t, []string{"0", "3", "3"}, p2)

	prefs, err := features.Strings("personal_preferences_ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"[2,3]", "[1]", "[null]"}, prefs)

	saved, err := identity.NewFileStore(cfg.Identity.Path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"AnaLee": 1, "BobTan": 2, "CarlNg": 3}, saved.Pairs())
}

func TestPrepare_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeSurvey(t, dir)
	output := filepath.Join(dir, "features.json")

	_, err := execute(NewPrepareCommand(createPrepareTestDeps(mockConfig(dir))), input, output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, float64(1), rows[0]["id"])
	assert.Nil(t, rows[2]["english"])
	assert.Equal(t, []any{nil}, rows[2]["personal_preferences_ids"])
}

func TestPrepare_TextReport(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig(dir)
	cfg.OutputFormat = config.OutputFormatText

	stdout, err := execute(NewPrepareCommand(createPrepareTestDeps(cfg)), writeSurvey(t, dir))
	require.NoError(t, err)

	assert.Contains(t, stdout, "Rows:         3 in, 3 out")
	assert.Contains(t, stdout, "Identities:   3")
	assert.Contains(t, stdout, "(not written)")
}

func TestPrepare_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig(dir)
	cfg.TimeColumns = []string{"time1", "time2"}
	output := filepath.Join(dir, "features.csv")

	_, err := execute(NewPrepareCommand(createPrepareTestDeps(cfg)), writeSurvey(t, dir), output)
	require.Error(t, err)
	assert.True(t, gperrors.IsMissingColumn(err))
	assert.Equal(t, gperrors.ErrCodeMissingColumn, gperrors.CodeOf(err))

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr), "no output should be written for a failed run")
}

func TestPrepare_UnsupportedInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "survey.txt")
	require.NoError(t, os.WriteFile(path, []byte(surveyCSV), 0o644))

	_, err := execute(NewPrepareCommand(createPrepareTestDeps(mockConfig(dir))), path)
	require.Error(t, err)
	assert.True(t, gperrors.IsUnsupportedFormat(err))
}

func TestPrepare_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no input", args: nil},
		{name: "export without database", args: []string{"survey.csv", "--export"}},
		{name: "bad mode", args: []string{"survey.csv", "--mode", "fuzzy"}},
		{name: "bad min score", args: []string{"survey.csv", "--min-score", "101"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mockConfig(t.TempDir())
			_, err := execute(NewPrepareCommand(createPrepareTestDeps(cfg)), tt.args...)
			require.Error(t, err)
			assert.True(t, gperrors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

type recordingStore struct {
	saved *identity.Map
}

func (s *recordingStore) Save(_ context.Context, m *identity.Map) error {
	s.saved = m
	return nil
}

func (s *recordingStore) Load(context.Context) (*identity.Map, error) {
	return s.saved, nil
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error {
	c.n++
	return nil
}

func TestPrepare_RedisStore(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig(dir)
	cfg.Identity.RedisAddr = "localhost:6379"

	store := &recordingStore{}
	closer := &closeCounter{}
	var gotAddr, gotKey string

	deps := createPrepareTestDeps(cfg)
	deps.RedisStore = func(addr, key string) (identity.Store, io.Closer) {
		gotAddr, gotKey = addr, key
		return store, closer
	}

	_, err := execute(NewPrepareCommand(deps), writeSurvey(t, dir))
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", gotAddr)
	assert.Equal(t, config.DefaultRedisKey, gotKey)
	require.NotNil(t, store.saved)
	assert.Equal(t, []string{"AnaLee", "BobTan", "CarlNg"}, store.saved.Keys())
	assert.Equal(t, 1, closer.n)
}

func TestPrepare_MetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "groupprep.prom")

	_, err := execute(NewPrepareCommand(createPrepareTestDeps(mockConfig(dir))),
		writeSurvey(t, dir), "--metrics-textfile", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "groupprep_identities 3")
	assert.Contains(t, string(data), `groupprep_stages_total{stage="preferences",status="ok"} 1`)
}

func TestPrepare_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig(dir)
	mapPath := filepath.Join(dir, "custom", "ids.json")

	_, err := execute(NewPrepareCommand(createPrepareTestDeps(cfg)),
		writeSurvey(t, dir), "--identity-map", mapPath, "--mode", "partial", "--min-score", "95", "--disambiguate")
	require.NoError(t, err)

	assert.Equal(t, "partial", cfg.Similarity.Mode)
	assert.Equal(t, 95, cfg.Similarity.MinScore)
	assert.True(t, cfg.Identity.Disambiguate)
	_, err = os.Stat(mapPath)
	assert.NoError(t, err)
}

func TestNewRunEntry(t *testing.T) {
	cfg := mockConfig(t.TempDir())
	cfg.Input = "survey.csv"
	cfg.Output = "features.csv"
	hostname := func() (string, error) { return "prep-host", nil }

	res := &pipeline.Result{Report: &pipeline.Report{
		RunID:      "2b7e0c1e-5a53-4c38-9d7e-0f4f3c1a9b11",
		RowsOut:    3,
		Identities: 3,
		Columns:    []string{"id"},
		Mentions:   pipeline.MentionStats{Total: 4, Resolved: 2, LowConfidence: 1, Unresolved: 1},
	}}

	t.Run("success", func(t *testing.T) {
		e := newRunEntry(cfg, res, nil, hostname)
		assert.True(t, e.Success)
		assert.Equal(t, res.Report.RunID, e.RunID)
		assert.Equal(t, 3, e.Rows)
		assert.Equal(t, 3, e.Resolved)
		assert.Equal(t, 1, e.Unresolved)
		assert.Equal(t, "prep-host", e.Hostname)
		assert.Empty(t, e.ErrorCode)
	})

	t.Run("failure", func(t *testing.T) {
		e := newRunEntry(cfg, res, gperrors.MissingColumn("time2"), hostname)
		assert.False(t, e.Success)
		assert.Equal(t, string(gperrors.ErrCodeMissingColumn), e.ErrorCode)
		assert.Contains(t, e.ErrorMessage, "time2")
	})

	t.Run("no result", func(t *testing.T) {
		e := newRunEntry(cfg, nil, errors.New("boom"), nil)
		assert.Equal(t, "survey.csv", e.Input)
		assert.Empty(t, e.RunID)
		assert.Equal(t, string(gperrors.ErrCodeProcessing), e.ErrorCode)
	})
}
