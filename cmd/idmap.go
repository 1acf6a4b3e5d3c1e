package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/groupprep/config"
	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
	"github.com/otherjamesbrown/groupprep/pkg/identity"
	"github.com/otherjamesbrown/groupprep/pkg/resolver"
	"github.com/otherjamesbrown/groupprep/pkg/similarity"
)

// IdmapCommandDeps holds the dependencies for identity map commands.
type IdmapCommandDeps struct {
	LoadConfig func(path string) (*config.PipelineConfig, error)
	RedisStore func(addr, key string) (identity.Store, io.Closer)
}

// DefaultIdmapDeps returns the default dependencies for production use.
func DefaultIdmapDeps() *IdmapCommandDeps {
	return &IdmapCommandDeps{
		LoadConfig: config.LoadConfig,
		RedisStore: newRedisStore,
	}
}

// NewIdmapCommand creates the idmap command with its subcommands.
func NewIdmapCommand(deps *IdmapCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultIdmapDeps()
	}
	var fromRedis bool

	cmd := &cobra.Command{
		Use:   "idmap",
		Short: "Inspect the persisted identity map",
		Long: `Inspect the identity map written by 'groupprep prepare'.

The map is read from identity.path, or from the Redis hash at
identity.redis_key when --redis is given.

Examples:
  groupprep idmap show
  groupprep idmap show --redis --output json
  groupprep idmap resolve "Ana Le" --mode partial`,
		Aliases: []string{"identities"},
	}
	cmd.PersistentFlags().BoolVar(&fromRedis, "redis", false, "Read the map from identity.redis_addr instead of the file")

	cmd.AddCommand(newIdmapShowCommand(deps, &fromRedis))
	cmd.AddCommand(newIdmapResolveCommand(deps, &fromRedis))
	return cmd
}

func newIdmapShowCommand(deps *IdmapCommandDeps, fromRedis *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List identities in assignment order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, m, err := loadIdentityMap(cmd, deps, *fromRedis)
			if err != nil {
				return err
			}
			format, err := outputFormat(cmd, cfg)
			if err != nil {
				return err
			}
			return outputIdentityMap(cmd.OutOrStdout(), format, m)
		},
	}
}

func newIdmapResolveCommand(deps *IdmapCommandDeps, fromRedis *bool) *cobra.Command {
	var mode string
	var fold bool

	cmd := &cobra.Command{
		Use:   "resolve <mention>",
		Short: "Resolve a free-text mention against the identity map",
		Long: `Resolve a free-text mention the same way the preference stage does.

Inner spaces are removed before scoring, so "Ana Le" is compared as "AnaLe".
The best-scoring identity is always returned together with its score.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, m, err := loadIdentityMap(cmd, deps, *fromRedis)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Similarity.Mode = mode
			}
			if cmd.Flags().Changed("fold") {
				cfg.Similarity.Fold = fold
			}
			parsed, err := similarity.ParseMode(cfg.Similarity.Mode)
			if err != nil {
				return fmt.Errorf("%w: %v", gperrors.ErrValidation, err)
			}

			mention := strings.ReplaceAll(strings.TrimSpace(args[0]), " ", "")
			match := resolver.New(m, similarity.Scorer{Mode: parsed, Fold: cfg.Similarity.Fold}).Resolve(mention)

			format, err := outputFormat(cmd, cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ok, err := writeStructured(out, format, match); ok {
				return err
			}
			if match.ID == 0 {
				fmt.Fprintf(out, "%q: no identities to match\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "%q -> %s (id %d, score %d)\n", args[0], match.Key, match.ID, match.Score)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Similarity mode: full or partial")
	cmd.Flags().BoolVar(&fold, "fold", false, "Fold case and diacritics before scoring")
	return cmd
}

func loadIdentityMap(cmd *cobra.Command, deps *IdmapCommandDeps, fromRedis bool) (*config.PipelineConfig, *identity.Map, error) {
	cfg, err := loadConfig(cmd, deps.LoadConfig)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var store identity.Store
	if fromRedis {
		if cfg.Identity.RedisAddr == "" {
			return nil, nil, fmt.Errorf("%w: identity.redis_addr is not set", gperrors.ErrValidation)
		}
		key := cfg.Identity.RedisKey
		if key == "" {
			key = config.DefaultRedisKey
		}
		s, closer := deps.RedisStore(cfg.Identity.RedisAddr, key)
		defer closer.Close()
		store = s
	} else {
		if cfg.Identity.Path == "" {
			return nil, nil, fmt.Errorf("%w: identity.path is not set", gperrors.ErrValidation)
		}
		store = identity.NewFileStore(config.ExpandPath(cfg.Identity.Path))
	}

	m, err := store.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading identity map: %w", err)
	}
	return cfg, m, nil
}

type identityEntry struct {
	ID  int    `json:"id" yaml:"id"`
	Key string `json:"key" yaml:"key"`
}

func outputIdentityMap(w io.Writer, format config.OutputFormat, m *identity.Map) error {
	keys := m.Keys()
	entries := make([]identityEntry, len(keys))
	for i, k := range keys {
		id, _ := m.ID(k)
		entries[i] = identityEntry{ID: id, Key: k}
	}
	if ok, err := writeStructured(w, format, entries); ok {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No identities.")
		return nil
	}
	fmt.Fprintf(w, "%-6s %s\n", "ID", "KEY")
	for _, e := range entries {
		fmt.Fprintf(w, "%-6d %s\n", e.ID, e.Key)
	}
	fmt.Fprintf(w, "\n%d identities\n", len(entries))
	return nil
}
