package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctagard/dap-viewer/internal/config"
	"github.com/ctagard/dap-viewer/internal/inject"
	"github.com/ctagard/dap-viewer/internal/logging"
	"github.com/ctagard/dap-viewer/internal/mcp"
	"github.com/ctagard/dap-viewer/internal/metrics"
	"github.com/ctagard/dap-viewer/internal/pyvalue"
	"github.com/ctagard/dap-viewer/internal/version"
	"github.com/ctagard/dap-viewer/internal/viewable"
)

// cli holds the global flags and the state built from them.
type cli struct {
	configPath string
	mode       string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "dap-viewer",
		Short: "MCP server for viewing Python objects in a paused debug session",
		Long: `dap-viewer drives debugpy over the Debug Adapter Protocol and lets an MCP
client classify, describe and serialize objects of a paused Python program:
images, tables, tensors and plots.

Run without a subcommand to serve MCP over stdio.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve()
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a JSON or YAML configuration file")
	root.PersistentFlags().StringVar(&c.mode, "mode", "", "capability mode override: readonly or full")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve MCP over stdio (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.serve()
			},
		},
		&cobra.Command{
			Use:   "script",
			Short: "Print the Python installation script for the configured viewables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, err := buildRegistry(c.cfg, c.logger)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), inject.Compose(reg.All()))
				return err
			},
		},
		&cobra.Command{
			Use:   "parse [reply]",
			Short: "Decode a helper reply, e.g. \"'Value([])'\", and print it as JSON",
			Long: `Decode a helper reply and print the value as JSON. The reply is read from
the arguments, or from stdin when none are given. Error replies and malformed
input exit with a non-zero status.`,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runParse(cmd.InOrStdin(), cmd.OutOrStdout(), args)
			},
		},
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// init loads the configuration and builds the logger.
func (c *cli) init() error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	switch config.CapabilityMode(c.mode) {
	case "":
	case config.ModeReadOnly, config.ModeFull:
		cfg.Mode = config.CapabilityMode(c.mode)
	default:
		return fmt.Errorf("unknown mode %q (want readonly or full)", c.mode)
	}

	logger, err := logging.New(cfg.Log, c.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *cli) serve() error {
	reg, err := buildRegistry(c.cfg, c.logger)
	if err != nil {
		return err
	}

	server := mcp.NewServer(c.cfg, reg, c.logger)

	if c.cfg.MetricsAddr != "" {
		stop, err := serveMetrics(c.cfg.MetricsAddr, c.logger)
		if err != nil {
			server.Close()
			return err
		}
		defer stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		c.logger.Info("shutting down", zap.Stringer("signal", sig))
		server.Close()
		_ = c.logger.Sync()
		os.Exit(0)
	}()

	c.logger.Info("dap-viewer server starting",
		zap.String("version", version.Version),
		zap.String("mode", string(c.cfg.Mode)),
		zap.Int("viewables", reg.Len()),
	)
	err = server.ServeStdio()
	server.Close()
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// serveMetrics exposes /metrics on addr until the returned stop func runs.
func serveMetrics(addr string, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// buildRegistry returns the built-in viewables followed by the configured
// ones. A configured viewable that repeats a registered (group, type) is
// skipped.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*viewable.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := viewable.NewBuiltinRegistry()
	for _, v := range cfg.Viewables {
		d, err := viewable.FromFile(v.Group, v.Type, v.Extension, v.SetupFile)
		if err != nil {
			return nil, err
		}
		added, err := reg.Register(d)
		if err != nil {
			return nil, err
		}
		if !added {
			logger.Warn("viewable already registered",
				zap.String("group", v.Group),
				zap.String("type", v.Type),
			)
		}
	}
	return reg, nil
}

func runParse(in io.Reader, out io.Writer, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		text = string(data)
	}

	v, err := pyvalue.Parse(text).Get()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
