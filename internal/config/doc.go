// Package config provides the gateway configuration model, YAML loading
// with environment variable substitution, validation, and file watching
// for runtime reloads.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("gateway.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    return err
//	}
//
// Values of the form ${VAR} and ${VAR:-default} are replaced from the
// environment before parsing. A literal dollar sign is written as $$.
//
// # File Watching
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.GatewayConfig) {
//	    _ = logger.SetLevel(cfg.Spec.Observability.Logging.Level)
//	})
//	if err != nil {
//	    return err
//	}
//	err = watcher.Start(ctx)
package config
