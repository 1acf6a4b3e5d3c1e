// Package main provides the groupprep CLI entry point.
// groupprep turns a raw workshop survey export into a numeric feature table
// for group assignment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/groupprep/cmd"
	"github.com/otherjamesbrown/groupprep/pkg/buildinfo"
	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
)

// Global flags.
var (
	cfgFile      string
	outputFormat string
	debug        bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "groupprep",
	Short: "Prepare workshop survey exports for group assignment",
	Long: `groupprep turns a raw workshop survey export into a fully numeric
feature table: time availability becomes one-hot day columns, priority
answers become weighted dummy vectors, static answers are mapped to numbers,
every participant gets a stable identity and free-text partner preferences
are resolved to those identities.

COMMON WORKFLOWS:
  Prepare a survey:   groupprep prepare survey.csv features.csv
  Inspect identities: groupprep idmap show  |  groupprep idmap resolve "Ana Le"
  Inspect encodings:  groupprep encode priority_topic1 survey.csv
  Configure:          groupprep config init  ->  groupprep config show

Use --output json or --output yaml for machine-readable results.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of groupprep.

Examples:
  groupprep version
  groupprep version --output json`,
	RunE: func(c *cobra.Command, args []string) error {
		return printVersion(c.OutOrStdout(), outputFormat)
	},
}

func printVersion(w io.Writer, format string) error {
	info := buildinfo.Get("groupprep")
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		return yaml.NewEncoder(w).Encode(info)
	}
	fmt.Fprintf(w, "groupprep version %s\n", info.Version)
	fmt.Fprintf(w, "  commit:     %s\n", info.Commit)
	fmt.Fprintf(w, "  built:      %s\n", info.BuildTime)
	fmt.Fprintf(w, "  go:         %s %s\n", info.GoVersion, info.Platform)
	return nil
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for groupprep.

Bash:
  $ source <(groupprep completion bash)

Zsh:
  $ groupprep completion zsh > "${fpath[1]}/_groupprep"

Fish:
  $ groupprep completion fish | source

PowerShell:
  PS> groupprep completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.groupprep/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add command groups for organized help output.
	rootCmd.AddGroup(
		&cobra.Group{ID: "prepare", Title: "Preparation:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	// Preparation
	prepareCmd := cmd.NewPrepareCommand(nil)
	prepareCmd.GroupID = "prepare"

	// Inspection
	idmapCmd := cmd.NewIdmapCommand(nil)
	idmapCmd.GroupID = "inspect"

	encodeCmd := cmd.NewEncodeCommand(nil)
	encodeCmd.GroupID = "inspect"

	dbCmd := cmd.NewDbCommand(nil)
	dbCmd.GroupID = "inspect"

	// Setup
	configCmd := cmd.NewConfigCommand(nil)
	configCmd.GroupID = "setup"

	completionCmd.GroupID = "setup"
	versionCmd.GroupID = "setup"

	rootCmd.AddCommand(prepareCmd, idmapCmd, encodeCmd, dbCmd, configCmd, completionCmd, versionCmd)
}

// reportError prints err with the suggested action for its error code.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if action := gperrors.GetSuggestedAction(gperrors.CodeOf(err)); action != "" {
		fmt.Fprintf(w, "  Suggested action: %s\n", action)
	}
}

func main() {
	// Set up signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
