// Package cmd provides CLI commands for the groupprep tool.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/groupprep/config"
	"github.com/otherjamesbrown/groupprep/pkg/logging"
)

// configFlag returns the --config value inherited from the root command.
func configFlag(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil {
		return f.Value.String()
	}
	return ""
}

// debugFlag reports whether --debug was set on the root command.
func debugFlag(cmd *cobra.Command) bool {
	f := cmd.Flag("debug")
	return f != nil && f.Value.String() == "true"
}

// outputFormat resolves --output against the configured default.
func outputFormat(cmd *cobra.Command, cfg *config.PipelineConfig) (config.OutputFormat, error) {
	format := cfg.OutputFormat
	if f := cmd.Flag("output"); f != nil && f.Value.String() != "" {
		format = config.OutputFormat(f.Value.String())
	}
	if !format.IsValid() {
		return "", fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", format)
	}
	return format, nil
}

// loadConfig loads the configuration named by --config and applies --debug.
func loadConfig(cmd *cobra.Command, load func(string) (*config.PipelineConfig, error)) (*config.PipelineConfig, error) {
	cfg, err := load(configFlag(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if debugFlag(cmd) {
		cfg.Debug = true
	}
	return cfg, nil
}

// newLogger builds the command logger from the log settings of cfg.
func newLogger(cfg *config.PipelineConfig, w io.Writer) logging.Logger {
	lc := logging.DefaultConfig()
	if w != nil {
		lc.Output = w
	}
	if cfg.Log.Level != "" {
		lc.Level = logging.Level(strings.ToLower(cfg.Log.Level))
	}
	if cfg.Debug {
		lc.Level = logging.LevelDebug
	}
	if cfg.Log.JSON {
		lc.Format = logging.FormatJSON
	}
	return logging.NewLogger(lc)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}

// writeStructured writes v as JSON or YAML and reports whether it did.
func writeStructured(w io.Writer, format config.OutputFormat, v interface{}) (bool, error) {
	switch format {
	case config.OutputFormatJSON:
		return true, writeJSON(w, v)
	case config.OutputFormatYAML:
		return true, writeYAML(w, v)
	}
	return false, nil
}
