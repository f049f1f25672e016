package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pollux/internal/config"
	"pollux/internal/logging"
	"pollux/internal/node"
)

type startFlags struct {
	configPath    string
	id            string
	endpoint      string
	listen        string
	seeds         []string
	logLevel      string
	logDev        bool
	metricsListen string
}

func newStartCmd() *cobra.Command {
	var f startFlags

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a cell",
		Long: `Start a cell and join the cluster through its seeds.

Examples:
  # Start the first cell
  pollux start --endpoint=127.0.0.1:7946

  # Start a cell that joins through a seed
  pollux start --endpoint=127.0.0.1:7947 --seeds=127.0.0.1:7946

  # Start from a config file, overriding the log level
  pollux start --config=pollux.toml --log-level=debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runStart(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Path to a TOML config file")
	flags.StringVar(&f.id, "id", "", "Cell identity (generated when empty)")
	flags.StringVarP(&f.endpoint, "endpoint", "e", config.DefaultEndpoint, "Address advertised to peers (ip:port)")
	flags.StringVar(&f.listen, "listen", "", "Bind address (defaults to the endpoint)")
	flags.StringSliceVarP(&f.seeds, "seeds", "s", nil, "Seed endpoints (comma-separated)")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&f.logDev, "log-development", false, "Human readable console logs")
	flags.StringVar(&f.metricsListen, "metrics-listen", "", "Serve /metrics and /healthz on this address")
	return cmd
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func loadConfig(cmd *cobra.Command, f startFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("id") {
		cfg.Cell.ID = f.id
	}
	if flags.Changed("endpoint") {
		cfg.Cell.Endpoint = f.endpoint
	}
	if flags.Changed("listen") {
		cfg.Cell.Listen = f.listen
	}
	if flags.Changed("seeds") {
		cfg.Gossip.Seeds = f.seeds
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-development") {
		cfg.Log.Development = f.logDev
	}
	if flags.Changed("metrics-listen") {
		cfg.Telemetry.Listen = f.metricsListen
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runStart(parent context.Context, cfg *config.Config) (err error) {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logging.RedirectGRPC(logger)

	n, err := node.New(cfg, logger, node.WithVersion(version))
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	defer func() {
		if cerr := n.Close(); cerr != nil {
			logger.Warn("error during shutdown", zap.Error(cerr))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting cell", zap.Stringer("id", n.ID()), zap.String("version", version))
	return n.Run(ctx)
}
