// Package providers contains dependency injection providers for the roomnotes server.
package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting roomnotes server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.Path,
		"store_backend", cfg.Store.Backend,
		"cascade_mode", cfg.Store.CascadeMode,
	)

	return log, nil
}

// ConfigWatcherHandle wraps the config file watcher with its context.
type ConfigWatcherHandle struct {
	*config.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ConfigWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Close()
}

// ProvideConfigWatcher reloads the log level and anonymous access when the
// YAML config file changes. Without a config file it does nothing.
func ProvideConfigWatcher(i do.Injector) (*ConfigWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	rt := do.MustInvoke[*RealtimeServerHandle](i)

	if cfg.File == "" {
		return &ConfigWatcherHandle{}, nil
	}

	watcher, err := config.NewWatcher(cfg.File, log.Logger, func(r config.Reloadable) {
		log.SetLevel(logger.ParseLevel(r.LogLevel))
		rt.SetAllowAnonymous(r.AllowAnonymous)
	})
	if err != nil {
		// Non-fatal: the server runs with the settings it started with.
		log.Warn("Config watcher unavailable", "path", cfg.File, "error", err)
		return &ConfigWatcherHandle{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	watcher.Start(ctx)
	log.Info("Watching config file", "path", cfg.File)

	return &ConfigWatcherHandle{Watcher: watcher, cancel: cancel}, nil
}
