package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nhdewitt/purrtb/internal/counter"
	"github.com/nhdewitt/purrtb/internal/reconcile"
)

const (
	DefaultInterval = 1  // seconds
	DefaultSamples  = 10 // rounds
	DefaultCPUInfo  = "/proc/cpuinfo"
)

// Environment overrides, applied after the config file and before flags.
const (
	EnvInterval  = "PURRTB_INTERVAL"
	EnvSamples   = "PURRTB_SAMPLES"
	EnvSysfsRoot = "PURRTB_SYSFS_ROOT"
	EnvCPUInfo   = "PURRTB_CPUINFO"
)

// Config holds everything a run needs. It is built once and not modified
// after Validate succeeds.
type Config struct {
	Interval        int      `yaml:"interval"`
	Samples         int      `yaml:"samples"`
	CPUInfo         string   `yaml:"cpuinfo"`
	SysfsRoot       string   `yaml:"sysfs_root"`
	TopologyCommand []string `yaml:"topology_command"`
	TopologyFile    string   `yaml:"topology_file"`
	TimebaseHz      uint64   `yaml:"timebase_hz"`
	LogLevel        string   `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Interval:        DefaultInterval,
		Samples:         DefaultSamples,
		CPUInfo:         DefaultCPUInfo,
		SysfsRoot:       counter.DefaultRoot,
		TopologyCommand: []string{"ppc64_cpu", "--info"},
		TimebaseHz:      reconcile.TimebaseHz,
		LogLevel:        "warn",
	}
}

// IntervalDuration is the sleep between the before and after snapshots.
func (c Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// ArgumentError reports a bad flag, flag value, config file or env value.
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string { return e.Err.Error() }

func (e *ArgumentError) Unwrap() error { return e.Err }

func argumentf(format string, args ...any) *ArgumentError {
	return &ArgumentError{Err: fmt.Errorf(format, args...)}
}

// Validate rejects values that cannot produce a meaningful run.
func (c Config) Validate() error {
	var errs []error

	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must be >= 0, got %d", c.Interval))
	}
	if c.Samples < 0 {
		errs = append(errs, fmt.Errorf("samples must be >= 0, got %d", c.Samples))
	}
	if c.TimebaseHz == 0 || c.TimebaseHz > math.MaxInt64 {
		errs = append(errs, fmt.Errorf("timebase_hz must be in 1..%d, got %d", int64(math.MaxInt64), c.TimebaseHz))
	}
	if c.CPUInfo == "" {
		errs = append(errs, errors.New("cpuinfo path is empty"))
	}
	if c.SysfsRoot == "" {
		errs = append(errs, errors.New("sysfs_root is empty"))
	}
	if c.TopologyFile == "" && len(c.TopologyCommand) == 0 {
		errs = append(errs, errors.New("topology_command is empty and no topology_file given"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return &ArgumentError{Err: err}
	}
	return nil
}

// LoadFile merges a YAML file over c. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return argumentf("reading config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return argumentf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv merges PURRTB_* variables over c.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvInterval); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return argumentf("%s=%q: %w", EnvInterval, v, err)
		}
		c.Interval = n
	}
	if v, ok := lookup(EnvSamples); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return argumentf("%s=%q: %w", EnvSamples, v, err)
		}
		c.Samples = n
	}
	if v, ok := lookup(EnvSysfsRoot); ok && v != "" {
		c.SysfsRoot = v
	}
	if v, ok := lookup(EnvCPUInfo); ok && v != "" {
		c.CPUInfo = v
	}
	return nil
}

// NewFlagSet defines the command-line flags. Parse errors are returned, not
// printed, so the caller decides how to show usage.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.IntP("interval", "i", DefaultInterval, "sampling interval in seconds")
	fs.IntP("samples", "s", DefaultSamples, "number of sampling rounds")
	fs.StringP("config", "c", "", "YAML config file")
	fs.String("cpuinfo", DefaultCPUInfo, "file listing online threads")
	fs.String("sysfs-root", counter.DefaultRoot, "directory containing cpuN/purr")
	fs.String("topology-file", "", "read captured 'ppc64_cpu --info' output instead of running it")
	fs.Uint64("timebase-hz", reconcile.TimebaseHz, "timebase ticks per second")
	fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	fs.BoolP("help", "h", false, "show help")

	return fs
}

// FromFlags builds a validated Config from parsed flags: defaults, then the
// --config file, then the environment, then flags set on the command line.
func FromFlags(fs *pflag.FlagSet, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, _ := fs.GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return Config{}, err
	}

	if fs.Changed("interval") {
		cfg.Interval, _ = fs.GetInt("interval")
	}
	if fs.Changed("samples") {
		cfg.Samples, _ = fs.GetInt("samples")
	}
	if fs.Changed("cpuinfo") {
		cfg.CPUInfo, _ = fs.GetString("cpuinfo")
	}
	if fs.Changed("sysfs-root") {
		cfg.SysfsRoot, _ = fs.GetString("sysfs-root")
	}
	if fs.Changed("topology-file") {
		cfg.TopologyFile, _ = fs.GetString("topology-file")
	}
	if fs.Changed("timebase-hz") {
		cfg.TimebaseHz, _ = fs.GetUint64("timebase-hz")
	}
	if fs.Changed("log-level") {
		cfg.LogLevel, _ = fs.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
