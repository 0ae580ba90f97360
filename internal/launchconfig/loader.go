package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// LoadFromPath loads a launch.json file from an explicit path.
func LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}

	var lj LaunchJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &lj, nil
}

// Discover searches for a .vscode/launch.json file starting from the given path
// and walking up the directory tree until found or reaching the root.
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	for current := absPath; ; {
		launchPath := filepath.Join(current, VSCodeDirName, LaunchJSONFileName)
		if _, err := os.Stat(launchPath); err == nil {
			return launchPath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
}

// LoadAndDiscover finds a launch.json from the start path and loads it.
func LoadAndDiscover(startPath string) (*LaunchJSON, string, error) {
	path, err := Discover(startPath)
	if err != nil {
		return nil, "", err
	}

	lj, err := LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}
	return lj, path, nil
}

// FindConfiguration finds a configuration by name.
func (lj *LaunchJSON) FindConfiguration(name string) (*DebugConfiguration, error) {
	for i := range lj.Configurations {
		if lj.Configurations[i].Name == name {
			return &lj.Configurations[i], nil
		}
	}
	return nil, fmt.Errorf("configuration %q not found (available: %v)", name, lj.Names())
}

// Names returns the configuration names in file order.
func (lj *LaunchJSON) Names() []string {
	names := make([]string, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		names[i] = cfg.Name
	}
	return names
}

// InputDefaults returns the default value of every declared input.
func (lj *LaunchJSON) InputDefaults() map[string]string {
	out := make(map[string]string, len(lj.Inputs))
	for _, in := range lj.Inputs {
		if in.Default != "" {
			out[in.ID] = in.Default
		}
	}
	return out
}

// GetWorkspaceFolder derives the workspace folder from the launch.json path:
// the parent of the .vscode directory.
func GetWorkspaceFolder(launchJSONPath string) string {
	return filepath.Dir(filepath.Dir(launchJSONPath))
}

// ValidateConfiguration checks that cfg can be run by debugpy.
func ValidateConfiguration(cfg *DebugConfiguration) error {
	if cfg.Name == "" {
		return fmt.Errorf("configuration name is required")
	}
	if !cfg.IsPython() {
		return fmt.Errorf("configuration %q has type %q, only debugpy configurations are supported", cfg.Name, cfg.Type)
	}
	switch {
	case cfg.IsLaunchRequest():
		if cfg.Program == "" && cfg.Module == "" {
			return fmt.Errorf("configuration %q needs a program or module", cfg.Name)
		}
	case cfg.IsAttachRequest():
		if cfg.port() == 0 {
			return fmt.Errorf("configuration %q needs connect.port", cfg.Name)
		}
	default:
		return fmt.Errorf("configuration request must be 'launch' or 'attach', got %q", cfg.Request)
	}
	return nil
}

func (c *DebugConfiguration) port() int {
	if c.Connect != nil && c.Connect.Port != 0 {
		return c.Connect.Port
	}
	return c.Port
}

func (c *DebugConfiguration) host() string {
	if c.Connect != nil && c.Connect.Host != "" {
		return c.Connect.Host
	}
	return c.Host
}
