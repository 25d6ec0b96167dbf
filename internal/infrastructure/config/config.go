package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/trigger"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable, e.g. PROBE_TREE_THRESHOLD_MS.
const EnvPrefix = "PROBE"

// Serialize modes for captured arguments.
const (
	SerializeSync  = "sync"
	SerializeAsync = "async"
)

// Output modes for rendered traces and flat lines.
const (
	OutputConsole = "console"
	OutputFile    = "file"
)

// Config holds all probe configuration.
type Config struct {
	Tree      TreeConfig      `yaml:"tree" toml:"tree" json:"tree"`
	Flat      FlatConfig      `yaml:"flat" toml:"flat" json:"flat"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" toml:"snapshot" json:"snapshot"`
	Exception ExceptionConfig `yaml:"exception" toml:"exception" json:"exception"`
	Output    OutputConfig    `yaml:"output" toml:"output" json:"output"`
	Server    ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Logging   LogConfig       `yaml:"logging" toml:"logging" json:"logging"`
	Shutdown  ShutdownConfig  `yaml:"shutdown" toml:"shutdown" json:"shutdown"`
}

// TreeConfig holds call tree settings.
type TreeConfig struct {
	Enabled          bool     `yaml:"enabled" toml:"enabled" json:"enabled"`
	EntryMethods     []string `yaml:"entry_methods" toml:"entry_methods" json:"entry_methods" split_words:"true"`
	Packages         []string `yaml:"packages" toml:"packages" json:"packages"`
	Trigger          string   `yaml:"trigger" toml:"trigger" json:"trigger"`
	ThresholdMs      int64    `yaml:"threshold_ms" toml:"threshold_ms" json:"threshold_ms" split_words:"true"`
	SnapshotProbeAll bool     `yaml:"snapshot_probe_all" toml:"snapshot_probe_all" json:"snapshot_probe_all" split_words:"true"`
}

// FlatConfig holds per-invocation logging settings.
type FlatConfig struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled" json:"enabled"`
	Packages    []string `yaml:"packages" toml:"packages" json:"packages"`
	Classes     []string `yaml:"classes" toml:"classes" json:"classes"`
	Methods     []string `yaml:"methods" toml:"methods" json:"methods"`
	Trigger     string   `yaml:"trigger" toml:"trigger" json:"trigger"`
	ThresholdMs int64    `yaml:"threshold_ms" toml:"threshold_ms" json:"threshold_ms" split_words:"true"`
}

// SnapshotConfig holds capture and persistence settings.
type SnapshotConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Dir           string `yaml:"dir" toml:"dir" json:"dir"`
	MaxObjectSize int    `yaml:"max_object_size" toml:"max_object_size" json:"max_object_size" split_words:"true"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days" json:"retention_days" split_words:"true"`
	SerializeMode string `yaml:"serialize_mode" toml:"serialize_mode" json:"serialize_mode" split_words:"true"`
	QueueSize     int    `yaml:"queue_size" toml:"queue_size" json:"queue_size" split_words:"true"`
	CompressAbove int    `yaml:"compress_above" toml:"compress_above" json:"compress_above" split_words:"true"`
}

// ExceptionConfig holds error filtering settings.
type ExceptionConfig struct {
	Include    []string `yaml:"include" toml:"include" json:"include"`
	Exclude    []string `yaml:"exclude" toml:"exclude" json:"exclude"`
	StackDepth int      `yaml:"stack_depth" toml:"stack_depth" json:"stack_depth" split_words:"true"`
}

// OutputConfig holds log sink settings.
type OutputConfig struct {
	Mode            string `yaml:"mode" toml:"mode" json:"mode"`
	Dir             string `yaml:"dir" toml:"dir" json:"dir"`
	BufferSize      int    `yaml:"buffer_size" toml:"buffer_size" json:"buffer_size" split_words:"true"`
	FlushIntervalMs int64  `yaml:"flush_interval_ms" toml:"flush_interval_ms" json:"flush_interval_ms" split_words:"true"`
	RenderQueueSize int    `yaml:"render_queue_size" toml:"render_queue_size" json:"render_queue_size" split_words:"true"`
}

// ServerConfig holds status server settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" toml:"addr" json:"addr"`
}

// LogConfig holds diagnostic logging settings.
type LogConfig struct {
	Level       string `yaml:"level" toml:"level" json:"level"`
	Development bool   `yaml:"development" toml:"development" json:"development"`
}

// ShutdownConfig holds drain settings.
type ShutdownConfig struct {
	TimeoutMs int64 `yaml:"timeout_ms" toml:"timeout_ms" json:"timeout_ms" split_words:"true"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Tree: TreeConfig{
			Enabled: true,
			Trigger: "timeout",
		},
		Flat: FlatConfig{
			Enabled: true,
			Trigger: "timeout",
		},
		Snapshot: SnapshotConfig{
			Enabled:       false,
			Dir:           "./probe-snapshots",
			MaxObjectSize: 1 << 20,
			RetentionDays: 7,
			SerializeMode: SerializeSync,
			QueueSize:     500,
		},
		Exception: ExceptionConfig{
			StackDepth: 10,
		},
		Output: OutputConfig{
			Mode:            OutputConsole,
			Dir:             "./probe-logs",
			BufferSize:      10000,
			FlushIntervalMs: 1000,
			RenderQueueSize: 1000,
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    ":9876",
		},
		Logging: LogConfig{
			Level: "info",
		},
		Shutdown: ShutdownConfig{
			TimeoutMs: 5000,
		},
	}
}

// Load builds configuration from defaults, then the optional file at path,
// then PROBE_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns default.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Tree.EntryMethods = cloneStrings(c.Tree.EntryMethods)
	out.Tree.Packages = cloneStrings(c.Tree.Packages)
	out.Flat.Packages = cloneStrings(c.Flat.Packages)
	out.Flat.Classes = cloneStrings(c.Flat.Classes)
	out.Flat.Methods = cloneStrings(c.Flat.Methods)
	out.Exception.Include = cloneStrings(c.Exception.Include)
	out.Exception.Exclude = cloneStrings(c.Exception.Exclude)
	return &out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Tree.ThresholdMs < 0 {
		errs = append(errs, fmt.Errorf("tree.threshold_ms must be >= 0, got %d", c.Tree.ThresholdMs))
	}
	if c.Flat.ThresholdMs < 0 {
		errs = append(errs, fmt.Errorf("flat.threshold_ms must be >= 0, got %d", c.Flat.ThresholdMs))
	}
	if _, err := trigger.Parse(c.Tree.Trigger, 0); err != nil {
		errs = append(errs, fmt.Errorf("tree.trigger: %w", err))
	}
	if _, err := trigger.Parse(c.Flat.Trigger, 0); err != nil {
		errs = append(errs, fmt.Errorf("flat.trigger: %w", err))
	}
	switch c.Snapshot.SerializeMode {
	case SerializeSync, SerializeAsync:
	default:
		errs = append(errs, fmt.Errorf("snapshot.serialize_mode must be %q or %q, got %q", SerializeSync, SerializeAsync, c.Snapshot.SerializeMode))
	}
	switch c.Output.Mode {
	case OutputConsole, OutputFile:
	default:
		errs = append(errs, fmt.Errorf("output.mode must be %q or %q, got %q", OutputConsole, OutputFile, c.Output.Mode))
	}
	if c.Snapshot.Enabled && c.Snapshot.Dir == "" {
		errs = append(errs, errors.New("snapshot.dir is required when snapshots are enabled"))
	}
	if c.Output.Mode == OutputFile && c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is required for file output"))
	}

	return errors.Join(errs...)
}

// ShutdownTimeout returns the drain timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Shutdown.TimeoutMs) * time.Millisecond
}

// FlushInterval returns the file sink flush interval as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Output.FlushIntervalMs) * time.Millisecond
}

func (c *Config) normalize() {
	c.Tree.EntryMethods = trimAll(c.Tree.EntryMethods)
	c.Tree.Packages = trimAll(c.Tree.Packages)
	c.Flat.Packages = trimAll(c.Flat.Packages)
	c.Flat.Classes = trimAll(c.Flat.Classes)
	c.Flat.Methods = trimAll(c.Flat.Methods)
	c.Exception.Include = trimAll(c.Exception.Include)
	c.Exception.Exclude = trimAll(c.Exception.Exclude)
	c.Snapshot.SerializeMode = strings.ToLower(strings.TrimSpace(c.Snapshot.SerializeMode))
	c.Output.Mode = strings.ToLower(strings.TrimSpace(c.Output.Mode))

	if c.Exception.StackDepth <= 0 {
		c.Exception.StackDepth = 10
	}
	if c.Snapshot.QueueSize <= 0 {
		c.Snapshot.QueueSize = 500
	}
	if c.Output.RenderQueueSize <= 0 {
		c.Output.RenderQueueSize = 1000
	}
}

func trimAll(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
