package main

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/avaguard/internal/config"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// runGateway serves until ctx is cancelled or the server fails, then shuts
// down gracefully.
func runGateway(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.server.Start()
	}()

	watcher := startConfigWatcher(ctx, configPath, logger)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
			runErr = err
		}
	}

	return errors.Join(runErr, shutdown(app, watcher, logger))
}

// startConfigWatcher watches the configuration file and applies the
// settings that can change at runtime. A watcher that fails to start only
// disables reloading.
func startConfigWatcher(
	ctx context.Context,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(cfg *config.GatewayConfig) {
		applyReload(cfg, logger)
	}, config.WithLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}
	return watcher
}

// applyReload applies the log level from a reloaded configuration. Other
// settings require a restart.
func applyReload(cfg *config.GatewayConfig, logger observability.Logger) {
	level := cfg.Spec.Observability.Logging.Level
	if err := logger.SetLevel(level); err != nil {
		logger.Warn("ignoring invalid log level from reload",
			observability.String("level", level),
			observability.Error(err),
		)
		return
	}
	logger.Info("configuration reloaded", observability.String("log_level", level))
}

// shutdown stops components in order: readiness first so load balancers
// drain, then the watcher, the server and finally the tracer.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) error {
	logger.Info("shutting down gateway")

	app.health.SetDraining(true)

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", observability.Error(err))
		}
	}

	timeout := app.config.Spec.Listener.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.server.Stop(ctx); err != nil {
		logger.Error("failed to stop server", observability.Error(err))
		errs = append(errs, err)
	}

	if app.tracer != nil {
		if err := app.tracer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracer", observability.Error(err))
			errs = append(errs, err)
		}
	}

	logger.Info("gateway stopped", observability.Duration("shutdown_timeout", timeout))
	return errors.Join(errs...)
}
