package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/logger"
	"github.com/roomnotes/roomnotes-server/internal/realtime"
	"github.com/roomnotes/roomnotes-server/internal/store"
	"github.com/roomnotes/roomnotes-server/internal/store/sqlite"
)

// HubHandle wraps the realtime hub with its context for lifecycle management.
type HubHandle struct {
	*realtime.Hub
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *HubHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Hub.Shutdown(ctx)
}

// ProvideHub provides the realtime hub that fans store changes out to sessions.
func ProvideHub(i do.Injector) (*HubHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	hub := realtime.NewHub(log.Component("realtime").Logger, cfg.Realtime.HeartbeatInterval)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)

	return &HubHandle{Hub: hub, cancel: cancel}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured backend. Every committed change is
// emitted to the hub.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	hub := do.MustInvoke[*HubHandle](i)

	if err := os.MkdirAll(cfg.Data.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	var (
		st   store.Store
		path string
		err  error
	)
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		path = filepath.Join(cfg.Data.Path, "roomnotes.db")
		st, err = sqlite.Open(path, log.Component("store").Logger, hub.Hub)
	default:
		path = filepath.Join(cfg.Data.Path, "db")
		st, err = store.New(path, log.Component("store").Logger, hub.Hub)
	}
	if err != nil {
		return nil, err
	}

	if _, ok := st.(store.Cascader); !ok && cfg.Store.CascadeMode == config.CascadeTransactional {
		log.Warn("Store backend cannot cascade in one transaction", "backend", cfg.Store.Backend)
	}

	log.Info("Database initialized", "backend", cfg.Store.Backend, "path", path)

	return &StoreHandle{Store: st}, nil
}

// ProvideSlogLogger provides access to the underlying slog.Logger for packages that need it.
func ProvideSlogLogger(i do.Injector) (*slog.Logger, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return log.Logger, nil
}
