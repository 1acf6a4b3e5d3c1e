// Package config provides pipeline configuration for the groupprep tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	gperrors "github.com/otherjamesbrown/groupprep/pkg/errors"
)

// OutputFormat defines the supported output formats for command results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultConfigDir       = ".groupprep"
	DefaultConfigFile      = "config.yaml"
	DefaultOutputFormat    = OutputFormatText
	DefaultDelimiter       = ","
	DefaultIdentityMapPath = "name_id_map.json"
	DefaultSimilarityMode  = "full"
	DefaultSentinel        = "Egal"
	DefaultSentinelWeight  = 3
	DefaultPreferenceSep   = ", "
	DefaultConcurrency     = 4
	DefaultRedisKey        = "groupprep:identities"
	DefaultExportTable     = "participant_features"
)

// PriorityField is a ranked-choice column and the weight of a real answer in it.
type PriorityField struct {
	Column string  `yaml:"column"`
	Weight float64 `yaml:"weight"`
	// Categories fixes the encoding basis. Empty means derive it from the data.
	Categories []string `yaml:"categories,omitempty"`
}

// IdentityConfig controls identity map building and persistence.
type IdentityConfig struct {
	// Path is where the identity map JSON is written. Empty disables the file store.
	Path string `yaml:"path"`

	// Disambiguate gives repeated names distinct identities.
	Disambiguate bool `yaml:"disambiguate,omitempty"`

	// RedisAddr, when set, also persists the map to a Redis hash.
	RedisAddr string `yaml:"redis_addr,omitempty"`
	RedisKey  string `yaml:"redis_key,omitempty"`
}

// SimilarityConfig controls preference resolution.
type SimilarityConfig struct {
	Mode string `yaml:"mode"`
	Fold bool   `yaml:"fold,omitempty"`

	// MinScore marks matches below it as low confidence in the report.
	// Zero reports every match as confident.
	MinScore int `yaml:"min_score,omitempty"`

	Concurrency int `yaml:"concurrency"`
}

// DatabaseConfig holds PostgreSQL connection settings. The password is never
// stored here; it comes from the credentials package.
type DatabaseConfig struct {
	// Host is the database server hostname.
	Host string `yaml:"host,omitempty"`

	// Port is the database server port (default: 5432).
	Port int `yaml:"port,omitempty"`

	// Database is the database name.
	Database string `yaml:"database,omitempty"`

	// User is the database username.
	User string `yaml:"user,omitempty"`

	// SSLMode is the SSL connection mode (disable, require, verify-ca, verify-full).
	SSLMode string `yaml:"sslmode,omitempty"`

	// SSLRootCert is the path to the SSL root certificate file.
	SSLRootCert string `yaml:"sslrootcert,omitempty"`

	// ExportTable is the table the prepared features are written to.
	ExportTable string `yaml:"export_table,omitempty"`

	// Ledger records each run in the groupprep_runs table.
	Ledger bool `yaml:"ledger,omitempty"`
}

// IsConfigured returns true if the database has the required fields.
func (c *DatabaseConfig) IsConfigured() bool {
	return c != nil && c.Host != "" && c.Database != "" && c.User != ""
}

// ConnectionString returns the key/value PostgreSQL connection string, with
// password appended when non-empty. Returns "" if not configured.
func (c *DatabaseConfig) ConnectionString(password string) string {
	if !c.IsConfigured() {
		return ""
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}

	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}

	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		c.Host, port, c.Database, c.User, sslmode)

	if (sslmode == "verify-ca" || sslmode == "verify-full") && c.SSLRootCert != "" {
		connStr += fmt.Sprintf(" sslrootcert=%s", expandPath(c.SSLRootCert))
	}
	if password != "" {
		connStr += " password=" + quoteConnValue(password)
	}
	return connStr
}

func quoteConnValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// MetricsConfig controls run metrics.
type MetricsConfig struct {
	// Textfile, when set, receives the run metrics in Prometheus text format.
	Textfile string `yaml:"textfile,omitempty"`
}

// PipelineConfig holds everything a preparation run needs.
type PipelineConfig struct {
	Input     string `yaml:"input,omitempty"`
	Output    string `yaml:"output,omitempty"`
	Delimiter string `yaml:"delimiter"`

	// OutputFormat specifies the format of command results on stdout.
	OutputFormat OutputFormat `yaml:"output_format"`

	// ColumnMappingPath points at a JSON object of export name to internal name.
	ColumnMappingPath string `yaml:"column_mapping_path,omitempty"`

	// DropColumns are export-only columns removed before encoding.
	DropColumns []string `yaml:"drop_columns"`

	NameFields []string `yaml:"name_fields"`

	PreferenceColumn    string `yaml:"preference_column"`
	PreferenceSeparator string `yaml:"preference_separator"`
	PreferenceOutput    string `yaml:"preference_output"`

	TimeColumns []string `yaml:"time_columns"`
	Days        []string `yaml:"days"`

	Priorities     []PriorityField `yaml:"priorities"`
	Sentinel       string          `yaml:"sentinel"`
	SentinelWeight float64         `yaml:"sentinel_weight"`

	// ValueMaps maps a column to its answer-to-number table. The key "" is
	// used for empty cells.
	ValueMaps map[string]map[string]float64 `yaml:"value_maps"`

	Identity   IdentityConfig   `yaml:"identity"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Database   *DatabaseConfig  `yaml:"database,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty"`
	Log        LogConfig        `yaml:"log,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfig returns a PipelineConfig for the standard survey export.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		Delimiter:    DefaultDelimiter,
		OutputFormat: DefaultOutputFormat,
		DropColumns: []string{
			"#", "Response Type", "Start Date (UTC)", "Stage Date (UTC)",
			"Submit Date (UTC)", "Network ID", "Tags", "feedback",
		},
		NameFields:          []string{"first_name", "last_name"},
		PreferenceColumn:    "personal_preferences",
		PreferenceSeparator: DefaultPreferenceSep,
		PreferenceOutput:    "personal_preferences_ids",
		TimeColumns:         []string{"time1", "time2", "time3", "time4", "time5", "time6", "time7"},
		Days:                []string{"Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag", "Sonntag"},
		Priorities: []PriorityField{
			{Column: "priority_topic1", Weight: 3},
			{Column: "priority_topic2", Weight: 2},
			{Column: "priority_topic3", Weight: 1},
		},
		Sentinel:       DefaultSentinel,
		SentinelWeight: DefaultSentinelWeight,
		ValueMaps: map[string]map[string]float64{
			"english": {"Nein": 0, "Egal": 1, "Ja": 1},
			"experience": {
				"Keine Vorkenntnisse": 1,
				"Basiswissen":         2,
				"Gute Vorkenntnisse":  3,
			},
			"preference_group": {
				"":                0,
				"Keine Präferenz": 0,
				"Eine Gruppe nur mit Psychologie Studierenden": 1,
			},
		},
		Identity: IdentityConfig{
			Path:     DefaultIdentityMapPath,
			RedisKey: DefaultRedisKey,
		},
		Similarity: SimilarityConfig{
			Mode:        DefaultSimilarityMode,
			Concurrency: DefaultConcurrency,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $GROUPPREP_CONFIG_DIR if set, otherwise ~/.groupprep
func ConfigDir() (string, error) {
	if dir := os.Getenv("GROUPPREP_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the default configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the pipeline configuration.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (path, or $GROUPPREP_CONFIG_DIR/config.yaml when path is empty)
// 3. Environment variables (GROUPPREP_INPUT, GROUPPREP_OUTPUT, ...)
//
// An explicit path must exist; the default file is optional.
func LoadConfig(path string) (*PipelineConfig, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = ConfigPath(); err != nil {
			return nil, fmt.Errorf("getting config path: %w", err)
		}
	}

	if _, err := os.Stat(path); err == nil || explicit {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg.
func loadFromFile(cfg *PipelineConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &gperrors.ConfigLoadError{Path: path, Cause: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &gperrors.ConfigLoadError{Path: path, Cause: err}
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *PipelineConfig) {
	if v := os.Getenv("GROUPPREP_INPUT"); v != "" {
		cfg.Input = v
	}

	if v := os.Getenv("GROUPPREP_OUTPUT"); v != "" {
		cfg.Output = v
	}

	if v := os.Getenv("GROUPPREP_DELIMITER"); v != "" {
		cfg.Delimiter = v
	}

	if v := os.Getenv("GROUPPREP_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("GROUPPREP_COLUMN_MAPPING"); v != "" {
		cfg.ColumnMappingPath = v
	}

	if v := os.Getenv("GROUPPREP_IDENTITY_MAP"); v != "" {
		cfg.Identity.Path = v
	}

	if v := os.Getenv("GROUPPREP_REDIS_ADDR"); v != "" {
		cfg.Identity.RedisAddr = v
	}

	if v := os.Getenv("GROUPPREP_SIMILARITY_MODE"); v != "" {
		cfg.Similarity.Mode = v
	}

	if v := os.Getenv("GROUPPREP_MIN_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Similarity.MinScore = n
		}
	}

	if v := os.Getenv("GROUPPREP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Similarity.Concurrency = n
		}
	}

	if v := os.Getenv("GROUPPREP_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}

	if v := os.Getenv("GROUPPREP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("GROUPPREP_LOG_JSON"); v == "true" || v == "1" {
		cfg.Log.JSON = true
	}

	if v := os.Getenv("GROUPPREP_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	loadDatabaseFromEnv(cfg)
}

// loadDatabaseFromEnv overlays database environment variables.
func loadDatabaseFromEnv(cfg *PipelineConfig) {
	host := os.Getenv("GROUPPREP_DB_HOST")
	database := os.Getenv("GROUPPREP_DB_DATABASE")
	user := os.Getenv("GROUPPREP_DB_USER")

	if host == "" && database == "" && user == "" {
		return
	}

	if cfg.Database == nil {
		cfg.Database = &DatabaseConfig{}
	}

	if host != "" {
		cfg.Database.Host = host
	}
	if database != "" {
		cfg.Database.Database = database
	}
	if user != "" {
		cfg.Database.User = user
	}
	if v := os.Getenv("GROUPPREP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("GROUPPREP_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
}

// Validate checks that the configuration is valid.
func (c *PipelineConfig) Validate() error {
	if len([]rune(c.Delimiter)) != 1 {
		return fmt.Errorf("%w: delimiter must be a single character, got %q", gperrors.ErrValidation, c.Delimiter)
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("%w: invalid output_format: %q (must be text, json, or yaml)", gperrors.ErrValidation, c.OutputFormat)
	}

	if len(c.NameFields) == 0 {
		return fmt.Errorf("%w: name_fields must not be empty", gperrors.ErrValidation)
	}

	if len(c.TimeColumns) > 0 && len(c.Days) == 0 {
		return fmt.Errorf("%w: days must not be empty when time_columns are set", gperrors.ErrValidation)
	}

	switch c.Similarity.Mode {
	case "full", "partial":
	default:
		return fmt.Errorf("%w: invalid similarity mode %q (must be full or partial)", gperrors.ErrValidation, c.Similarity.Mode)
	}

	if c.Similarity.MinScore < 0 || c.Similarity.MinScore > 100 {
		return fmt.Errorf("%w: min_score must be between 0 and 100", gperrors.ErrValidation)
	}

	if c.Similarity.Concurrency < 1 {
		return fmt.Errorf("%w: similarity concurrency must be positive", gperrors.ErrValidation)
	}

	if c.SentinelWeight < 0 {
		return fmt.Errorf("%w: sentinel_weight must not be negative", gperrors.ErrValidation)
	}

	for _, p := range c.Priorities {
		if p.Column == "" {
			return fmt.Errorf("%w: priority field without column", gperrors.ErrValidation)
		}
		if p.Weight <= 0 {
			return fmt.Errorf("%w: priority %s weight must be positive", gperrors.ErrValidation, p.Column)
		}
	}

	return nil
}

// DelimiterRune returns the configured CSV delimiter.
func (c *PipelineConfig) DelimiterRune() rune {
	r := []rune(c.Delimiter)
	if len(r) == 0 {
		return ','
	}
	return r[0]
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig writes cfg as YAML to path, creating its directory.
func SaveConfig(cfg *PipelineConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// LoadColumnMapping reads a JSON object mapping export column names to
// internal names.
func LoadColumnMapping(path string) (map[string]string, error) {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return nil, &gperrors.ConfigLoadError{Path: path, Cause: err}
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, &gperrors.ConfigLoadError{Path: path, Cause: err}
	}
	return mapping, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	return expandPath(path)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return original if home dir lookup fails.
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
