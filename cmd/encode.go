package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/groupprep/config"
	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/encoding"
	"github.com/otherjamesbrown/groupprep/pkg/ingest"
	"github.com/otherjamesbrown/groupprep/pkg/table"
)

// EncodeCommandDeps holds the dependencies for the encode command.
type EncodeCommandDeps struct {
	LoadConfig func(path string) (*config.PipelineConfig, error)
	ReadTable  func(path string, delimiter rune) (*table.Table, error)
}

// DefaultEncodeDeps returns the default dependencies for production use.
func DefaultEncodeDeps() *EncodeCommandDeps {
	return &EncodeCommandDeps{
		LoadConfig: config.LoadConfig,
		ReadTable:  ingest.ReadTable,
	}
}

// BasisView is the printable form of a column's encoding.
type BasisView struct {
	Column         string      `json:"column" yaml:"column"`
	Sentinel       string      `json:"sentinel" yaml:"sentinel"`
	RealWeight     float64     `json:"real_weight" yaml:"real_weight"`
	SentinelWeight float64     `json:"sentinel_weight" yaml:"sentinel_weight"`
	Categories     []string    `json:"categories" yaml:"categories"`
	Columns        []string    `json:"columns" yaml:"columns"`
	Matrix         [][]float64 `json:"matrix" yaml:"matrix"`
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(deps *EncodeCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultEncodeDeps()
	}
	var weight float64

	cmd := &cobra.Command{
		Use:   "encode <column> [input]",
		Short: "Show the dummy encoding a column would get",
		Long: `Show the categories observed in a column and the vector each one is
encoded to. The sentinel row comes last.

The weight is taken from the matching priorities entry, or --weight for
other columns. Categories fixed in the configuration are used as-is.

Examples:
  groupprep encode priority_topic1 survey.csv
  groupprep encode priority_topic2 --output json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, deps.LoadConfig)
			if err != nil {
				return err
			}
			if len(args) > 1 {
				cfg.Input = args[1]
			}
			if cfg.Input == "" {
				return fmt.Errorf("%w: no input file given", gperrors.ErrValidation)
			}
			format, err := outputFormat(cmd, cfg)
			if err != nil {
				return err
			}

			t, err := deps.ReadTable(cfg.Input, cfg.DelimiterRune())
			if err != nil {
				return fmt.Errorf("reading %s: %w", cfg.Input, err)
			}
			if cfg.ColumnMappingPath != "" {
				mapping, err := config.LoadColumnMapping(cfg.ColumnMappingPath)
				if err != nil {
					return err
				}
				if t, err = t.Rename(mapping); err != nil {
					return err
				}
			}

			view, err := describeBasis(t, cfg, args[0], weight, cmd.Flags().Changed("weight"))
			if err != nil {
				return err
			}
			return outputBasis(cmd.OutOrStdout(), format, view)
		},
	}
	cmd.Flags().Float64Var(&weight, "weight", 1, "Weight of a real category for columns without a priorities entry")
	return cmd
}

func describeBasis(t *table.Table, cfg *config.PipelineConfig, column string, weight float64, weightSet bool) (*BasisView, error) {
	values, err := t.Strings(column)
	if err != nil {
		return nil, err
	}

	var fixed []string
	for _, p := range cfg.Priorities {
		if p.Column == column {
			if !weightSet {
				weight = p.Weight
			}
			fixed = p.Categories
			break
		}
	}
	if len(fixed) > 0 {
		values = fixed
	}

	b := encoding.NewBasis(values, cfg.Sentinel, weight, cfg.SentinelWeight)
	return &BasisView{
		Column:         column,
		Sentinel:       b.Sentinel,
		RealWeight:     b.RealWeight,
		SentinelWeight: b.SentinelWeight,
		Categories:     b.Categories,
		Columns:        encoding.ColumnNames(column, b.K()),
		Matrix:         b.Matrix(),
	}, nil
}

func outputBasis(w io.Writer, format config.OutputFormat, v *BasisView) error {
	if ok, err := writeStructured(w, format, v); ok {
		return err
	}

	fmt.Fprintf(w, "Basis for %s: %d categories, weight %g, sentinel %q = %g\n",
		v.Column, len(v.Categories), v.RealWeight, v.Sentinel, v.SentinelWeight)
	fmt.Fprintf(w, "  %-24s %s\n", "VALUE", strings.Join(v.Columns, " "))
	labels := append(append([]string{}, v.Categories...), v.Sentinel)
	for i, row := range v.Matrix {
		cells := make([]string, len(row))
		for j, x := range row {
			cells[j] = fmt.Sprintf("%g", x)
		}
		fmt.Fprintf(w, "  %-24s %s\n", labels[i], strings.Join(cells, " "))
	}
	return nil
}
