package gopwsh

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	// DefaultWaitPause is the poll interval between output readiness checks.
	DefaultWaitPause = 5 * time.Millisecond

	// DefaultMaxWait is the overall deadline for one command.
	DefaultMaxWait = 10 * time.Second

	// DefaultWindowsExecutable is the PowerShell binary on Windows.
	DefaultWindowsExecutable = "powershell.exe"

	// DefaultUnixExecutable is the PowerShell binary everywhere else.
	DefaultUnixExecutable = "powershell"
)

// Duration wraps time.Duration so config files can use strings like
// "250ms" or "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Config overrides session defaults. The zero value (and a nil
// *Config) means "use defaults everywhere"; only the fields that are
// set are applied.
type Config struct {
	// Executable is the PowerShell binary to launch. Defaults to the
	// platform executable found on PATH.
	Executable string `yaml:"executable,omitempty"`

	// Args replaces the default launch argument vector. Leave nil for
	// the standard non-interactive, no-profile, read-commands-from-stdin
	// flag set. Mostly useful for pointing a session at a stand-in
	// shell under test.
	Args []string `yaml:"args,omitempty"`

	// CombineErrors merges stderr into stdout when true (the default).
	// When false the error stream is captured separately and reported
	// through Response.ErrorOutput.
	CombineErrors *bool `yaml:"combine_errors,omitempty"`

	// PromoteFaults enables structured-fault promotion: a JSON object
	// on the error channel carrying Exception.Message or
	// CategoryInfo.Reason is returned as a *ScriptFault error instead
	// of error text.
	PromoteFaults *bool `yaml:"promote_faults,omitempty"`

	// WaitPause is the poll interval of the completion heuristic.
	WaitPause *Duration `yaml:"wait_pause,omitempty"`

	// MaxWait is the overall per-command deadline.
	MaxWait *Duration `yaml:"max_wait,omitempty"`

	// TempDir is where script files are staged. Defaults to the system
	// temp directory.
	TempDir string `yaml:"temp_dir,omitempty"`

	// ScriptDir is a folder copied recursively into the temp directory
	// when the session opens, so staged scripts can dot-source their
	// companions. When set, the copy target becomes the session's
	// temp directory.
	ScriptDir string `yaml:"script_dir,omitempty"`

	// Preferences are PowerShell variables assigned right after the
	// process starts, e.g. "ErrorActionPreference" -> "'Stop'". A
	// leading "$" on the name is optional.
	Preferences map[string]string `yaml:"preferences,omitempty"`
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// settings holds the fully resolved configuration a session runs with.
type settings struct {
	executable    string
	args          []string
	combineErrors bool
	promoteFaults bool
	waitPause     time.Duration
	maxWait       time.Duration
	tempDir       string
	scriptDir     string
	preferences   map[string]string
}

func defaultSettings() settings {
	return settings{
		executable:    defaultExecutable(),
		combineErrors: true,
		waitPause:     DefaultWaitPause,
		maxWait:       DefaultMaxWait,
	}
}

// resolveSettings merges a user Config onto the defaults. Pure: it
// touches neither the filesystem nor the environment, so the merge
// rules are testable on their own.
func resolveSettings(cfg *Config) settings {
	st := defaultSettings()
	if cfg == nil {
		return st
	}
	if cfg.Executable != "" {
		st.executable = cfg.Executable
	}
	if cfg.Args != nil {
		// An empty non-nil slice is a deliberate "no extra flags"
		// override, so the copy must stay non-nil.
		st.args = make([]string, len(cfg.Args))
		copy(st.args, cfg.Args)
	}
	if cfg.CombineErrors != nil {
		st.combineErrors = *cfg.CombineErrors
	}
	if cfg.PromoteFaults != nil {
		st.promoteFaults = *cfg.PromoteFaults
	}
	if cfg.WaitPause != nil {
		st.waitPause = cfg.WaitPause.Duration
	}
	if cfg.MaxWait != nil {
		st.maxWait = cfg.MaxWait.Duration
	}
	if cfg.TempDir != "" {
		st.tempDir = cfg.TempDir
	}
	if cfg.ScriptDir != "" {
		st.scriptDir = cfg.ScriptDir
	}
	if len(cfg.Preferences) > 0 {
		st.preferences = make(map[string]string, len(cfg.Preferences))
		for k, v := range cfg.Preferences {
			st.preferences[k] = v
		}
	}
	return st
}

func defaultExecutable() string {
	if runtime.GOOS == "windows" {
		return DefaultWindowsExecutable
	}
	return DefaultUnixExecutable
}
