package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/groupprep/config"
	"github.com/otherjamesbrown/groupprep/credentials"
	"github.com/otherjamesbrown/groupprep/pkg/db"
	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/export"
	"github.com/otherjamesbrown/groupprep/pkg/identity"
	"github.com/otherjamesbrown/groupprep/pkg/ingest"
	"github.com/otherjamesbrown/groupprep/pkg/ledger"
	"github.com/otherjamesbrown/groupprep/pkg/logging"
	"github.com/otherjamesbrown/groupprep/pkg/observability"
	"github.com/otherjamesbrown/groupprep/pkg/pipeline"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// PrepareCommandDeps holds the dependencies for the prepare command.
type PrepareCommandDeps struct {
	LoadConfig func(path string) (*config.PipelineConfig, error)
	ReadTable  func(path string, delimiter rune) (*table.Table, error)
	RedisStore func(addr, key string) (identity.Store, io.Closer)
	Password   func(user string) (string, error)
	ConnectDB  func(ctx context.Context, connStr string) (*pgxpool.Pool, error)
	OpenLedger func(connStr string) (*ledger.Client, error)
	Hostname   func() (string, error)
	// LogOutput receives log lines; nil means stderr.
	LogOutput io.Writer
}

// DefaultPrepareDeps returns the default dependencies for production use.
func DefaultPrepareDeps() *PrepareCommandDeps {
	return &PrepareCommandDeps{
		LoadConfig: config.LoadConfig,
		ReadTable:  ingest.ReadTable,
		RedisStore: newRedisStore,
		Password:   credentials.Lookup,
		ConnectDB: func(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
			return db.Connect(ctx, connStr, db.DefaultPoolOptions())
		},
		OpenLedger: ledger.Open,
		Hostname:   os.Hostname,
	}
}

func newRedisStore(addr, key string) (identity.Store, io.Closer) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return identity.NewRedisStore(client, key), client
}

type prepareOptions struct {
	delimiter     string
	mode          string
	minScore      int
	concurrency   int
	disambiguate  bool
	columnMapping string
	identityMap   string
	metricsFile   string
	export        bool
}

// NewPrepareCommand creates the prepare command.
func NewPrepareCommand(deps *PrepareCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultPrepareDeps()
	}
	opts := &prepareOptions{}

	cmd := &cobra.Command{
		Use:   "prepare [input] [output]",
		Short: "Turn a survey export into a numeric feature table",
		Long: `Prepare a raw survey export (.csv or .xlsx) for group assignment.

The run drops export-only columns, one-hot encodes time slots, encodes the
priority fields against their observed categories, maps static answers to
numbers, assigns each participant an identity and resolves the free-text
preference column to identities.

The feature table is written to the output path (.csv or .json). The
identity map is saved to identity.path and, when identity.redis_addr is set,
to a Redis hash. With --export (or database.export_table) the table is also
copied into PostgreSQL. With database.ledger the run is recorded in the
groupprep_runs table.

Row-level problems never abort the run: the affected cells are left missing
and listed in the run report.

Examples:
  groupprep prepare survey.csv features.csv
  groupprep prepare survey.xlsx features.json --mode partial
  groupprep prepare survey.csv out.csv --min-score 80 --output json
  groupprep prepare --config ./prep.yaml --export`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(cmd, deps, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.delimiter, "delimiter", "d", "", "CSV delimiter for input and output")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Similarity mode: full or partial")
	cmd.Flags().IntVar(&opts.minScore, "min-score", -1, "Report matches scoring below this as low confidence (0-100)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Number of goroutines resolving preferences")
	cmd.Flags().BoolVar(&opts.disambiguate, "disambiguate", false, "Give participants with identical names separate identities")
	cmd.Flags().StringVar(&opts.columnMapping, "column-mapping", "", "JSON file mapping export column names to internal names")
	cmd.Flags().StringVar(&opts.identityMap, "identity-map", "", "Path of the identity map JSON file")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-textfile", "", "Write run metrics in Prometheus text format to this file")
	cmd.Flags().BoolVar(&opts.export, "export", false, "Copy the feature table into PostgreSQL")

	return cmd
}

// apply overlays positional arguments and flags onto cfg.
func (o *prepareOptions) apply(cmd *cobra.Command, cfg *config.PipelineConfig, args []string) error {
	if len(args) > 0 {
		cfg.Input = args[0]
	}
	if len(args) > 1 {
		cfg.Output = args[1]
	}
	if o.delimiter != "" {
		cfg.Delimiter = o.delimiter
	}
	if o.mode != "" {
		cfg.Similarity.Mode = o.mode
	}
	if o.minScore >= 0 {
		cfg.Similarity.MinScore = o.minScore
	}
	if o.concurrency > 0 {
		cfg.Similarity.Concurrency = o.concurrency
	}
	if cmd.Flags().Changed("disambiguate") {
		cfg.Identity.Disambiguate = o.disambiguate
	}
	if o.columnMapping != "" {
		cfg.ColumnMappingPath = o.columnMapping
	}
	if o.identityMap != "" {
		cfg.Identity.Path = o.identityMap
	}
	if o.metricsFile != "" {
		cfg.Metrics.Textfile = o.metricsFile
	}

	if cfg.Input == "" {
		return fmt.Errorf("%w: no input file given", gperrors.ErrValidation)
	}
	if o.export {
		if !cfg.Database.IsConfigured() {
			return fmt.Errorf("%w: --export needs database.host, database.database and database.user", gperrors.ErrValidation)
		}
		if cfg.Database.ExportTable == "" {
			cfg.Database.ExportTable = config.DefaultExportTable
		}
	}
	return cfg.Validate()
}

func runPrepare(cmd *cobra.Command, deps *PrepareCommandDeps, opts *prepareOptions, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd, deps.LoadConfig)
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg, args); err != nil {
		return err
	}
	format, err := outputFormat(cmd, cfg)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, deps.LogOutput).With(logging.F("command", "prepare"))
	metrics := observability.NewPipelineMetrics()

	raw, err := deps.ReadTable(cfg.Input, cfg.DelimiterRune())
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.Input, err)
	}

	popts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithMetrics(metrics)}
	if cfg.Identity.Path != "" {
		popts = append(popts, pipeline.WithStore("file", identity.NewFileStore(config.ExpandPath(cfg.Identity.Path))))
	}
	if cfg.Identity.RedisAddr != "" && deps.RedisStore != nil {
		key := cfg.Identity.RedisKey
		if key == "" {
			key = config.DefaultRedisKey
		}
		store, closer := deps.RedisStore(cfg.Identity.RedisAddr, key)
		defer closer.Close()
		popts = append(popts, pipeline.WithStore("redis", store))
	}

	p, err := pipeline.New(cfg, popts...)
	if err != nil {
		return err
	}

	res, runErr := p.Run(ctx, raw, cfg.Input)
	if runErr == nil && cfg.Output != "" {
		if err := ingest.WriteFile(config.ExpandPath(cfg.Output), res.Table, cfg.DelimiterRune()); err != nil {
			runErr = fmt.Errorf("writing %s: %w", cfg.Output, err)
		} else {
			logger.Info("Wrote feature table", logging.F("path", cfg.Output), logging.F("rows", res.Table.Len()))
		}
	}

	if runErr == nil && cfg.Database.IsConfigured() && cfg.Database.ExportTable != "" {
		if err := exportFeatures(ctx, deps, cfg, res, metrics, logger); err != nil {
			runErr = err
		}
	}

	if cfg.Database.IsConfigured() && cfg.Database.Ledger {
		recordRun(ctx, deps, cfg, res, runErr, logger)
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(config.ExpandPath(cfg.Metrics.Textfile)); err != nil {
			logger.Warn("Failed to write metrics textfile", logging.Err(err), logging.F("path", cfg.Metrics.Textfile))
		}
	}

	if res != nil {
		if err := outputReport(cmd.OutOrStdout(), format, cfg, res.Report); err != nil {
			return err
		}
	}
	return runErr
}

// exportFeatures copies the feature table into the configured export table.
func exportFeatures(ctx context.Context, deps *PrepareCommandDeps, cfg *config.PipelineConfig, res *pipeline.Result, metrics *observability.PipelineMetrics, logger logging.Logger) error {
	ctx, span := observability.NewTracer().StartExportSpan(ctx, "postgres")
	defer span.End()
	h := observability.NewSpanHelper(span)

	password, err := deps.Password(cfg.Database.User)
	if err != nil {
		h.SetError(err, "credentials")
		return fmt.Errorf("looking up database password: %w", err)
	}

	pool, err := deps.ConnectDB(ctx, cfg.Database.ConnectionString(password))
	if err != nil {
		h.SetError(err, "connect")
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	if err := db.RegisterPoolStats(metrics.Registry(), pool, "groupprep", "export"); err != nil {
		logger.Warn("Failed to register pool metrics", logging.Err(err))
	}

	sink := export.NewPostgresSink(pool, cfg.Database.ExportTable)
	if err := sink.EnsureTable(ctx); err != nil {
		h.SetError(err, "ddl")
		return err
	}
	n, err := sink.Write(ctx, res.Report.RunID, res.Table)
	if err != nil {
		h.SetError(err, "copy")
		return err
	}

	h.SetShape(int(n), len(res.Report.Columns))
	h.SetSuccess()
	logger.Info("Exported feature table",
		logging.F("table", cfg.Database.ExportTable),
		logging.F("rows", n),
		logging.F("run_id", res.Report.RunID))
	return nil
}

// recordRun writes the run to the ledger. Ledger failures are logged only.
func recordRun(ctx context.Context, deps *PrepareCommandDeps, cfg *config.PipelineConfig, res *pipeline.Result, runErr error, logger logging.Logger) {
	password, err := deps.Password(cfg.Database.User)
	if err != nil {
		logger.Warn("Skipping run ledger", logging.Err(err))
		return
	}
	client, err := deps.OpenLedger(cfg.Database.ConnectionString(password))
	if err != nil {
		logger.Warn("Skipping run ledger", logging.Err(err))
		return
	}
	defer client.Close()

	if err := client.EnsureSchema(ctx); err != nil {
		logger.Warn("Failed to prepare run ledger", logging.Err(err))
		return
	}
	if err := client.Record(ctx, newRunEntry(cfg, res, runErr, deps.Hostname)); err != nil {
		logger.Warn("Failed to record run", logging.Err(err))
	}
}

func newRunEntry(cfg *config.PipelineConfig, res *pipeline.Result, runErr error, hostname func() (string, error)) *ledger.RunEntry {
	e := &ledger.RunEntry{
		Input:   cfg.Input,
		Output:  cfg.Output,
		Success: runErr == nil,
	}
	if hostname != nil {
		e.Hostname, _ = hostname()
	}
	if res != nil {
		r := res.Report
		e.RunID = r.RunID
		e.Rows = r.RowsOut
		e.Identities = r.Identities
		e.Resolved = r.Mentions.Resolved + r.Mentions.LowConfidence
		e.Unresolved = r.Mentions.Unresolved
		e.Columns = r.Columns
		e.DurationMs = int(r.Duration.Milliseconds())
	}
	if runErr != nil {
		e.ErrorCode = string(gperrors.CodeOf(runErr))
		e.ErrorMessage = runErr.Error()
	}
	return e
}

func outputReport(w io.Writer, format config.OutputFormat, cfg *config.PipelineConfig, r *pipeline.Report) error {
	if ok, err := writeStructured(w, format, r); ok {
		return err
	}

	fmt.Fprintf(w, "Run %s\n", r.RunID)
	fmt.Fprintf(w, "  Input:        %s\n", valueOrDefault(r.Input, "-"))
	fmt.Fprintf(w, "  Output:       %s\n", valueOrDefault(cfg.Output, "(not written)"))
	fmt.Fprintf(w, "  Rows:         %d in, %d out\n", r.RowsIn, r.RowsOut)
	fmt.Fprintf(w, "  Columns:      %d\n", len(r.Columns))
	fmt.Fprintf(w, "  Identities:   %d\n", r.Identities)
	fmt.Fprintf(w, "  Mentions:     %d (%d resolved, %d low confidence, %d unresolved)\n",
		r.Mentions.Total, r.Mentions.Resolved, r.Mentions.LowConfidence, r.Mentions.Unresolved)
	fmt.Fprintf(w, "  Cleaning ops: %d\n", len(r.CleaningOps))
	fmt.Fprintf(w, "  Row issues:   %d\n", len(r.RowIssues))
	if len(r.PersistFailures) > 0 {
		fmt.Fprintf(w, "  Not saved to: %v\n", r.PersistFailures)
	}
	fmt.Fprintf(w, "  Duration:     %s\n", r.Duration.Round(time.Millisecond))
	return nil
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
