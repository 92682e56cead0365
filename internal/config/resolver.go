// Package config resolves provnotes settings from a YAML file, PROVNOTES_*
// environment variables and CLI flags, in increasing precedence. Every
// resolved value remembers where it came from.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Defaults and bounds.
const (
	DefaultNotesColumn      = "notes"
	DefaultGroupColumn      = "product_group"
	DefaultChunkSize        = 5000
	MinChunkSize            = 100
	MaxChunkSize            = 10000
	DefaultThreshold        = 0.3
	DefaultLongPatternBonus = 0.05
	DefaultDBPath           = "~/.provnotes/runs.db"
)

// ErrInvalid marks a value that parsed but is out of bounds or malformed.
var ErrInvalid = errors.New("invalid configuration")

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI flag values; empty strings mean "not set".
type ResolveOptions struct {
	ConfigPath string

	CLINotesColumn      string
	CLIGroupColumn      string
	CLIChunkSize        string
	CLIWorkers          string
	CLICatalogPath      string
	CLIDBPath           string
	CLIThreshold        string
	CLILongPatternBonus string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	NotesColumn      ResolvedValue `json:"notes_column"`
	GroupColumn      ResolvedValue `json:"group_column"`
	ChunkSize        ResolvedValue `json:"chunk_size"`
	Workers          ResolvedValue `json:"workers"`
	CatalogPath      ResolvedValue `json:"catalog_path"`
	DBPath           ResolvedValue `json:"db_path"`
	Threshold        ResolvedValue `json:"acceptance_threshold"`
	LongPatternBonus ResolvedValue `json:"long_pattern_bonus"`
}

// Settings is the typed, validated form of a ResolvedConfig.
type Settings struct {
	NotesColumn      string
	GroupColumn      string
	ChunkSize        int
	Workers          int
	CatalogPath      string // empty means the embedded catalog
	DBPath           string
	Threshold        float64
	LongPatternBonus float64
}

type fileConfig struct {
	NotesColumn string `yaml:"notes_column"`
	GroupColumn string `yaml:"group_column"`
	ChunkSize   *int   `yaml:"chunk_size"`
	Workers     *int   `yaml:"workers"`
	CatalogPath string `yaml:"catalog_path"`
	DBPath      string `yaml:"db_path"`
	Extraction  struct {
		Threshold        *float64 `yaml:"acceptance_threshold"`
		LongPatternBonus *float64 `yaml:"long_pattern_bonus"`
	} `yaml:"extraction"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".provnotes", "config.yaml")
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath:       path,
		NotesColumn:      defaultValue(DefaultNotesColumn),
		GroupColumn:      defaultValue(DefaultGroupColumn),
		ChunkSize:        defaultValue(cast.ToString(DefaultChunkSize)),
		Workers:          defaultValue(cast.ToString(runtime.NumCPU())),
		DBPath:           defaultValue(DefaultDBPath),
		Threshold:        defaultValue(cast.ToString(DefaultThreshold)),
		LongPatternBonus: defaultValue(cast.ToString(DefaultLongPatternBonus)),
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.NotesColumn, cfg.NotesColumn, SourceConfig, path)
		apply(&out.GroupColumn, cfg.GroupColumn, SourceConfig, path)
		apply(&out.CatalogPath, cfg.CatalogPath, SourceConfig, path)
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		if cfg.ChunkSize != nil {
			apply(&out.ChunkSize, cast.ToString(*cfg.ChunkSize), SourceConfig, path)
		}
		if cfg.Workers != nil {
			apply(&out.Workers, cast.ToString(*cfg.Workers), SourceConfig, path)
		}
		if v := cfg.Extraction.Threshold; v != nil {
			apply(&out.Threshold, cast.ToString(*v), SourceConfig, path)
		}
		if v := cfg.Extraction.LongPatternBonus; v != nil {
			apply(&out.LongPatternBonus, cast.ToString(*v), SourceConfig, path)
		}
	}

	applyEnv(&out.NotesColumn, "PROVNOTES_NOTES_COLUMN")
	applyEnv(&out.GroupColumn, "PROVNOTES_GROUP_COLUMN")
	applyEnv(&out.ChunkSize, "PROVNOTES_CHUNK_SIZE")
	applyEnv(&out.Workers, "PROVNOTES_WORKERS")
	applyEnv(&out.CatalogPath, "PROVNOTES_CATALOG")
	applyEnv(&out.DBPath, "PROVNOTES_DB")
	applyEnv(&out.DBPath, "PROVNOTES_DB_PATH")
	applyEnv(&out.Threshold, "PROVNOTES_THRESHOLD")
	applyEnv(&out.LongPatternBonus, "PROVNOTES_LONG_PATTERN_BONUS")

	apply(&out.NotesColumn, opts.CLINotesColumn, SourceCLI, "--notes-column")
	apply(&out.GroupColumn, opts.CLIGroupColumn, SourceCLI, "--group-column")
	apply(&out.ChunkSize, opts.CLIChunkSize, SourceCLI, "--chunk-size")
	apply(&out.Workers, opts.CLIWorkers, SourceCLI, "--workers")
	apply(&out.CatalogPath, opts.CLICatalogPath, SourceCLI, "--catalog")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Threshold, opts.CLIThreshold, SourceCLI, "--threshold")
	apply(&out.LongPatternBonus, opts.CLILongPatternBonus, SourceCLI, "--long-pattern-bonus")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.CatalogPath.Value = expandUserPath(out.CatalogPath.Value)

	return out, nil
}

// Settings converts and validates the resolved values. Errors name the
// offending key and where its value came from, and wrap ErrInvalid.
func (r ResolvedConfig) Settings() (Settings, error) {
	s := Settings{
		NotesColumn: r.NotesColumn.Value,
		GroupColumn: r.GroupColumn.Value,
		CatalogPath: r.CatalogPath.Value,
		DBPath:      r.DBPath.Value,
	}
	var err error
	if s.ChunkSize, err = intValue("chunk_size", r.ChunkSize, MinChunkSize, MaxChunkSize); err != nil {
		return s, err
	}
	if s.Workers, err = intValue("workers", r.Workers, 1, 1<<10); err != nil {
		return s, err
	}
	if s.Threshold, err = floatValue("acceptance_threshold", r.Threshold); err != nil {
		return s, err
	}
	if s.Threshold < 0 || s.Threshold >= 1 {
		return s, invalid("acceptance_threshold", r.Threshold, "must be in [0, 1)")
	}
	if s.LongPatternBonus, err = floatValue("long_pattern_bonus", r.LongPatternBonus); err != nil {
		return s, err
	}
	if s.LongPatternBonus < 0 || s.LongPatternBonus > 1 {
		return s, invalid("long_pattern_bonus", r.LongPatternBonus, "must be in [0, 1]")
	}
	if strings.TrimSpace(s.NotesColumn) == "" {
		return s, invalid("notes_column", r.NotesColumn, "must not be empty")
	}
	return s, nil
}

func intValue(key string, v ResolvedValue, min, max int) (int, error) {
	n, err := cast.ToIntE(strings.TrimSpace(v.Value))
	if err != nil {
		return 0, invalid(key, v, "not an integer")
	}
	if n < min || n > max {
		return 0, invalid(key, v, fmt.Sprintf("must be between %d and %d", min, max))
	}
	return n, nil
}

func floatValue(key string, v ResolvedValue) (float64, error) {
	f, err := cast.ToFloat64E(strings.TrimSpace(v.Value))
	if err != nil {
		return 0, invalid(key, v, "not a number")
	}
	return f, nil
}

func invalid(key string, v ResolvedValue, reason string) error {
	from := string(v.Source)
	if v.From != "" {
		from += " " + v.From
	}
	return fmt.Errorf("%w: %s=%q (%s) %s", ErrInvalid, key, v.Value, from, reason)
}

func defaultValue(v string) ResolvedValue {
	return ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
