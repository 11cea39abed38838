// Package main is the entry point for the avaguard gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avaguard/internal/config"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "avaguard: %v\n", err)
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		fmt.Fprintf(os.Stderr, "avaguard: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags. Every flag falls back to a
// GATEWAY_* environment variable; a variable that cannot be parsed is an
// error.
func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("avaguard", flag.ContinueOnError)
	env := newFlagEnv(os.LookupEnv)

	var flags cliFlags
	fs.StringVar(&flags.configPath, "config", env.stringOr("CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level", env.stringOr("LOG_LEVEL", ""),
		"Log level override (debug, info, warn, error)")
	fs.StringVar(&flags.logFormat, "log-format", env.stringOr("LOG_FORMAT", ""),
		"Log format override (json, console)")
	fs.BoolVar(&flags.showVersion, "version", env.boolOr("SHOW_VERSION", false),
		"Show version information")

	if err := env.err(); err != nil {
		return cliFlags{}, fmt.Errorf("invalid environment: %w", err)
	}
	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "avaguard version %s\n", version)
	_, _ = fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	_, _ = fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// run loads the configuration, builds the application, and serves until
// ctx is cancelled.
func run(ctx context.Context, flags cliFlags) error {
	cfg, configPath, err := loadAndValidateConfig(flags)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.Spec.Observability.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting avaguard",
		observability.String("version", version),
		observability.String("config", configPath),
		observability.String("backend", cfg.Spec.Backend.URL),
	)

	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize gateway", observability.Error(err))
		return err
	}

	return runGateway(ctx, app, configPath, logger)
}

// loadAndValidateConfig resolves and loads the configuration, applying the
// command line overrides before validation. It returns the resolved path.
func loadAndValidateConfig(flags cliFlags) (*config.GatewayConfig, string, error) {
	path, err := config.ResolveConfigPath(flags.configPath)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, "", err
	}

	applyFlagOverrides(cfg, flags)

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

func applyFlagOverrides(cfg *config.GatewayConfig, flags cliFlags) {
	if flags.logLevel != "" {
		cfg.Spec.Observability.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Spec.Observability.Logging.Format = flags.logFormat
	}
}

// initLogger initializes the logger.
func initLogger(cfg config.LoggingConfig) (observability.Logger, error) {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
