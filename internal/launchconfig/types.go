// Package launchconfig reads debugpy configurations from a VS Code
// .vscode/launch.json so sessions can be started by configuration name.
package launchconfig

// LaunchJSON is the subset of a launch.json file this package understands.
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
	Inputs         []InputConfig        `json:"inputs,omitempty"`
}

// DebugConfiguration is a single entry of launch.json. Only the fields
// debugpy uses are decoded; everything else is ignored.
type DebugConfiguration struct {
	Type    string `json:"type"`    // "debugpy" or the older "python"
	Request string `json:"request"` // "launch" or "attach"
	Name    string `json:"name"`

	Program     string            `json:"program,omitempty"`
	Module      string            `json:"module,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`

	Python     string `json:"python,omitempty"`     // VS Code style (preferred)
	PythonPath string `json:"pythonPath,omitempty"` // legacy debugpy style

	// Attach target. Connect is the current form, Host/Port the legacy one.
	Connect *ConnectConfig `json:"connect,omitempty"`
	Host    string         `json:"host,omitempty"`
	Port    int            `json:"port,omitempty"`
}

// ConnectConfig is the "connect" block of an attach configuration.
type ConnectConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
}

// InputConfig declares an ${input:id} variable. Only the default value is
// used; there is nobody to prompt.
type InputConfig struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Default string `json:"default,omitempty"`
}

// ResolutionContext provides the values ${...} variables resolve to.
type ResolutionContext struct {
	WorkspaceFolder string
	InputValues     map[string]string // values for ${input:} variables
	EnvOverrides    map[string]string // consulted before the process environment
}

// IsPython reports whether the configuration targets debugpy.
func (c *DebugConfiguration) IsPython() bool {
	return c.Type == "debugpy" || c.Type == "python"
}

// IsLaunchRequest returns true if this is a launch configuration (not attach).
func (c *DebugConfiguration) IsLaunchRequest() bool {
	return c.Request == "launch"
}

// IsAttachRequest returns true if this is an attach configuration.
func (c *DebugConfiguration) IsAttachRequest() bool {
	return c.Request == "attach"
}

// Interpreter returns the configured python, preferring "python" over
// "pythonPath".
func (c *DebugConfiguration) Interpreter() string {
	if c.Python != "" {
		return c.Python
	}
	return c.PythonPath
}
