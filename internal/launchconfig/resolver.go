package launchconfig

import (
	"fmt"

	"github.com/ctagard/dap-viewer/internal/adapters"
)

// Resolved is a configuration with every variable substituted, converted to
// the options the debugpy adapter takes. Exactly one of Launch and Attach is
// set, according to the request.
type Resolved struct {
	Name   string
	Launch *adapters.LaunchOptions
	Attach *adapters.AttachOptions
}

// ResolveConfiguration validates cfg and resolves all of its variables.
func ResolveConfiguration(cfg *DebugConfiguration, ctx *ResolutionContext) (*Resolved, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if err := ValidateConfiguration(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	res := &Resolved{Name: cfg.Name}

	if cfg.IsAttachRequest() {
		host, err := ResolveVariables(cfg.host(), ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve host: %w", err)
		}
		res.Attach = &adapters.AttachOptions{Host: host, Port: cfg.port()}
		return res, nil
	}

	opts := &adapters.LaunchOptions{StopOnEntry: cfg.StopOnEntry}
	fields := []struct {
		name string
		in   string
		out  *string
	}{
		{"program", cfg.Program, &opts.Program},
		{"module", cfg.Module, &opts.Module},
		{"cwd", cfg.Cwd, &opts.Cwd},
		{"python", cfg.Interpreter(), &opts.PythonPath},
	}
	for _, f := range fields {
		v, err := ResolveVariables(f.in, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f.name, err)
		}
		*f.out = v
	}

	var err error
	if opts.Args, err = ResolveStringSlice(cfg.Args, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve args: %w", err)
	}
	if opts.Env, err = ResolveStringMap(cfg.Env, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve env: %w", err)
	}

	res.Launch = opts
	return res, nil
}

// Load discovers launch.json from startPath and resolves the named
// configuration. Declared input defaults fill ${input:} variables.
func Load(startPath, name string) (*Resolved, error) {
	lj, path, err := LoadAndDiscover(startPath)
	if err != nil {
		return nil, err
	}

	cfg, err := lj.FindConfiguration(name)
	if err != nil {
		return nil, err
	}

	return ResolveConfiguration(cfg, &ResolutionContext{
		WorkspaceFolder: GetWorkspaceFolder(path),
		InputValues:     lj.InputDefaults(),
	})
}
