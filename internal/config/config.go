// Package config provides configuration management for the dap-viewer server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): whether execution control tools are exposed
//   - Permission flags: spawning adapters, attaching, evaluating in the debuggee
//   - The Python interpreter used to run debugpy
//   - Safety limits: maximum sessions, idle timeout and request timeout
//   - Extra viewables loaded from Python setup files
//
// Configuration is read from a JSON or YAML file, chosen by extension, on
// top of sensible defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Viewable tools and session listing only
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode          CapabilityMode `json:"mode" yaml:"mode"`
	AllowSpawn    bool           `json:"allowSpawn" yaml:"allowSpawn"`
	AllowAttach   bool           `json:"allowAttach" yaml:"allowAttach"`
	AllowEvaluate bool           `json:"allowEvaluate" yaml:"allowEvaluate"`

	Python PythonConfig `json:"python" yaml:"python"`

	// Limits for safety
	MaxSessions    int      `json:"maxSessions" yaml:"maxSessions"`
	SessionTimeout Duration `json:"sessionTimeout" yaml:"sessionTimeout"`
	RequestTimeout Duration `json:"requestTimeout" yaml:"requestTimeout"`

	// EvaluateContext is sent with every viewable query: watch, repl or hover.
	EvaluateContext string `json:"evaluateContext" yaml:"evaluateContext"`

	// OutputDir is where viewable_serialize writes when no path is given.
	OutputDir string `json:"outputDir" yaml:"outputDir"`

	// MetricsAddr, e.g. "127.0.0.1:9464", serves Prometheus metrics at
	// /metrics. Empty disables the listener.
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`

	Log       LogConfig        `json:"log" yaml:"log"`
	Viewables []ViewableConfig `json:"viewables" yaml:"viewables"`
}

// PythonConfig holds debugpy-specific configuration
type PythonConfig struct {
	PythonPath string `json:"pythonPath" yaml:"pythonPath"`
	JustMyCode *bool  `json:"justMyCode,omitempty" yaml:"justMyCode,omitempty"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json or console
}

// ViewableConfig registers one extra viewable from a Python setup file.
type ViewableConfig struct {
	Group     string `json:"group" yaml:"group"`
	Type      string `json:"type" yaml:"type"`
	Extension string `json:"extension" yaml:"extension"`
	SetupFile string `json:"setupFile" yaml:"setupFile"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:            ModeFull,
		AllowSpawn:      true,
		AllowAttach:     true,
		AllowEvaluate:   true,
		MaxSessions:     10,
		SessionTimeout:  Duration(30 * time.Minute),
		RequestTimeout:  Duration(10 * time.Second),
		EvaluateContext: string(types.EvalContextRepl),
		OutputDir:       os.TempDir(),
		Python: PythonConfig{
			PythonPath: "python3",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.ConfigInvalid(path, err.Error())
	}

	// Setup files are relative to the config file.
	base := filepath.Dir(path)
	for i, v := range cfg.Viewables {
		if v.SetupFile != "" && !filepath.IsAbs(v.SetupFile) {
			cfg.Viewables[i].SetupFile = filepath.Join(base, v.SetupFile)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error())
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("unknown mode %q (want readonly or full)", c.Mode)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("maxSessions must be positive, got %d", c.MaxSessions)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("sessionTimeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("requestTimeout must be positive")
	}
	if _, err := types.ParseEvalContext(c.EvaluateContext); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q (want json or console)", c.Log.Format)
	}
	for i, v := range c.Viewables {
		if v.Group == "" || v.Type == "" || v.SetupFile == "" {
			return fmt.Errorf("viewables[%d]: group, type and setupFile are required", i)
		}
	}
	return nil
}

// EvalContext returns the validated evaluate context.
func (c *Config) EvalContext() types.EvalContext {
	ec, err := types.ParseEvalContext(c.EvaluateContext)
	if err != nil {
		return types.EvalContextRepl
	}
	return ec
}

// CanUseControlTools returns true if control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanSpawn returns true if spawning debug adapters is allowed
func (c *Config) CanSpawn() bool {
	return c.Mode == ModeFull && c.AllowSpawn
}

// CanAttach returns true if attaching to debug adapters is allowed
func (c *Config) CanAttach() bool {
	return c.Mode == ModeFull && c.AllowAttach
}

// CanEvaluate returns true if viewable queries may run code in the debuggee
func (c *Config) CanEvaluate() bool {
	return c.AllowEvaluate
}

// Duration is a time.Duration that reads "30s"-style strings as well as
// plain nanosecond counts.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or a number of nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
