package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/groupprep/config"
	"github.com/otherjamesbrown/groupprep/credentials"
	"github.com/otherjamesbrown/groupprep/pkg/db"
	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/ledger"
)

// passwordStore is the keyring subset the password commands use.
type passwordStore interface {
	SetPassword(user, password string) error
	DeletePassword(user string) error
}

// DbCommandDeps holds the dependencies for database commands.
type DbCommandDeps struct {
	LoadConfig   func(path string) (*config.PipelineConfig, error)
	Password     func(user string) (string, error)
	ConnectDB    func(ctx context.Context, connStr string) (*pgxpool.Pool, error)
	OpenLedger   func(connStr string) (*ledger.Client, error)
	Keyring      passwordStore
	ReadPassword func() (string, error)
}

// DefaultDbDeps returns the default dependencies for production use.
func DefaultDbDeps() *DbCommandDeps {
	return &DbCommandDeps{
		LoadConfig: config.LoadConfig,
		Password:   credentials.Lookup,
		ConnectDB: func(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
			return db.Connect(ctx, connStr, db.DefaultPoolOptions())
		},
		OpenLedger:   ledger.Open,
		Keyring:      credentials.NewKeyringProvider(),
		ReadPassword: promptPassword,
	}
}

// NewDbCommand creates the root db command with all subcommands.
func NewDbCommand(deps *DbCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDbDeps()
	}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database export and run ledger commands",
		Long: `Database commands for the optional PostgreSQL export and run ledger.

Connection settings come from the database section of the configuration or
GROUPPREP_DB_* environment variables. The password is read from
GROUPPREP_DB_PASSWORD or the system keyring.

Examples:
  # Check connectivity
  groupprep db check

  # Store the password in the system keyring
  groupprep db password set

  # Show recent preparation runs
  groupprep db history --limit 10`,
		Aliases: []string{"database"},
	}

	cmd.AddCommand(newDbCheckCommand(deps))
	cmd.AddCommand(newDbPasswordCommand(deps))
	cmd.AddCommand(newDbHistoryCommand(deps))
	return cmd
}

func newDbCheckCommand(deps *DbCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the database connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDatabaseConfig(cmd, deps)
			if err != nil {
				return err
			}
			format, err := outputFormat(cmd, cfg)
			if err != nil {
				return err
			}

			password, err := deps.Password(cfg.Database.User)
			if err != nil {
				return fmt.Errorf("looking up database password: %w", err)
			}
			pool, err := deps.ConnectDB(cmd.Context(), cfg.Database.ConnectionString(password))
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer db.Close(pool)

			status := db.Check(cmd.Context(), pool)
			out := cmd.OutOrStdout()
			if ok, err := writeStructured(out, format, status); ok {
				return err
			}
			if !status.Healthy {
				fmt.Fprintf(out, "Database: UNHEALTHY\n  Error: %s\n", status.Error)
				return nil
			}
			fmt.Fprintf(out, "Database: HEALTHY\n")
			fmt.Fprintf(out, "  Host:     %s/%s\n", cfg.Database.Host, cfg.Database.Database)
			fmt.Fprintf(out, "  User:     %s\n", cfg.Database.User)
			fmt.Fprintf(out, "  Password: %s\n", credentials.MaskPassword(password))
			fmt.Fprintf(out, "  Latency:  %s\n", status.Latency)
			return nil
		},
	}
}

func newDbPasswordCommand(deps *DbCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage the database password in the system keyring",
	}

	var fromStdin bool
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the database password in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDatabaseConfig(cmd, deps)
			if err != nil {
				return err
			}

			var password string
			if fromStdin {
				password, err = readLine(cmd.InOrStdin())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", cfg.Database.User)
				password, err = deps.ReadPassword()
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			if password == "" {
				return fmt.Errorf("%w: empty password", gperrors.ErrValidation)
			}

			if err := deps.Keyring.SetPassword(cfg.Database.User, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored password for %s (%s)\n", cfg.Database.User, credentials.MaskPassword(password))
			return nil
		},
	}
	setCmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the password from stdin instead of prompting")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the database password from the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDatabaseConfig(cmd, deps)
			if err != nil {
				return err
			}
			if err := deps.Keyring.DeletePassword(cfg.Database.User); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed password for %s\n", cfg.Database.User)
			return nil
		},
	}

	cmd.AddCommand(setCmd, clearCmd)
	return cmd
}

func newDbHistoryCommand(deps *DbCommandDeps) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent preparation runs from the run ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDatabaseConfig(cmd, deps)
			if err != nil {
				return err
			}
			format, err := outputFormat(cmd, cfg)
			if err != nil {
				return err
			}

			password, err := deps.Password(cfg.Database.User)
			if err != nil {
				return fmt.Errorf("looking up database password: %w", err)
			}
			client, err := deps.OpenLedger(cfg.Database.ConnectionString(password))
			if err != nil {
				return err
			}
			defer client.Close()

			entries, err := client.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return outputHistory(cmd.OutOrStdout(), format, entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func loadDatabaseConfig(cmd *cobra.Command, deps *DbCommandDeps) (*config.PipelineConfig, error) {
	cfg, err := loadConfig(cmd, deps.LoadConfig)
	if err != nil {
		return nil, err
	}
	if !cfg.Database.IsConfigured() {
		return nil, fmt.Errorf("%w: database.host, database.database and database.user must be set", gperrors.ErrValidation)
	}
	return cfg, nil
}

func outputHistory(w io.Writer, format config.OutputFormat, entries []ledger.RunEntry) error {
	if ok, err := writeStructured(w, format, entries); ok {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-20s %-10s %-7s %6s %6s %-24s %s\n", "WHEN", "RUN", "STATUS", "ROWS", "IDS", "INPUT", "ERROR")
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		runID := e.RunID
		if len(runID) > 8 {
			runID = runID[:8]
		}
		fmt.Fprintf(w, "%-20s %-10s %-7s %6d %6d %-24s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			runID, status, e.Rows, e.Identities,
			truncateString(e.Input, 24), e.ErrorCode)
	}
	return nil
}

// promptPassword reads a password without echo, falling back to a plain
// line read when stdin is not a terminal.
func promptPassword() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return readLine(os.Stdin)
	}
	b, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
