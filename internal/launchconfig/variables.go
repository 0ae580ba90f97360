package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveVariables replaces all ${...} variables in text. Unresolvable
// variables are left in place and the last failure is returned.
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	var lastErr error
	out := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		resolved, err := resolveVariable(match[2:len(match)-1], ctx)
		if err != nil {
			lastErr = err
			return match
		}
		return resolved
	})
	return out, lastErr
}

func resolveVariable(expr string, ctx *ResolutionContext) (string, error) {
	switch {
	case expr == "workspaceFolder":
		return ctx.WorkspaceFolder, nil

	case expr == "workspaceFolderBasename":
		return filepath.Base(ctx.WorkspaceFolder), nil

	case expr == "userHome":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home: %w", err)
		}
		return home, nil

	case expr == "cwd":
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get cwd: %w", err)
		}
		return cwd, nil

	case expr == "pathSeparator" || expr == "/":
		return string(os.PathSeparator), nil

	case strings.HasPrefix(expr, "env:"):
		name := strings.TrimPrefix(expr, "env:")
		if val, ok := ctx.EnvOverrides[name]; ok {
			return val, nil
		}
		return os.Getenv(name), nil

	case strings.HasPrefix(expr, "config:"):
		return resolveConfigVariable(strings.TrimPrefix(expr, "config:"), ctx.WorkspaceFolder)

	case expr == "command:python.interpreterPath":
		return findPythonPath(ctx), nil

	case strings.HasPrefix(expr, "input:"):
		id := strings.TrimPrefix(expr, "input:")
		if val, ok := ctx.InputValues[id]; ok {
			return val, nil
		}
		return "", fmt.Errorf("missing input value for ${input:%s}", id)

	default:
		return "", fmt.Errorf("unsupported variable: ${%s}", expr)
	}
}

// resolveConfigVariable reads a setting such as python.defaultInterpreterPath
// from .vscode/settings.json. A missing file or setting resolves to "".
func resolveConfigVariable(settingID, workspaceFolder string) (string, error) {
	if workspaceFolder == "" {
		return "", fmt.Errorf("workspaceFolder required for ${config:} variables")
	}

	data, err := os.ReadFile(filepath.Join(workspaceFolder, VSCodeDirName, "settings.json"))
	if err != nil {
		return "", nil
	}

	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return "", fmt.Errorf("failed to parse settings.json: %w", err)
	}

	// VS Code stores dotted ids flat; nested objects are accepted too.
	var current interface{} = settings
	if v, ok := settings[settingID]; ok {
		current = v
	} else {
		for _, part := range strings.Split(settingID, ".") {
			m, ok := current.(map[string]interface{})
			if !ok {
				return "", nil
			}
			current = m[part]
		}
	}

	switch v := current.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		data, _ := json.Marshal(v)
		return string(data), nil
	}
}

// findPythonPath prefers a workspace virtual environment over the system
// interpreter.
func findPythonPath(ctx *ResolutionContext) string {
	if ctx.WorkspaceFolder != "" {
		for _, venv := range []string{".venv", "venv"} {
			for _, name := range []string{"python", "python3"} {
				p := filepath.Join(ctx.WorkspaceFolder, venv, "bin", name)
				if _, err := os.Stat(p); err == nil {
					return p
				}
			}
		}
	}
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return "python3"
}

// ResolveStringSlice resolves variables in every element of values.
func ResolveStringSlice(values []string, ctx *ResolutionContext) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		resolved, err := ResolveVariables(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = resolved
	}
	return out, nil
}

// ResolveStringMap resolves variables in the values (not keys) of a map.
func ResolveStringMap(values map[string]string, ctx *ResolutionContext) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		resolved, err := ResolveVariables(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}
