// Package main runs the roomnotes server: REST API, realtime endpoints and
// mDNS advertisement, all assembled by the DI container.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/roomnotes/roomnotes-server/internal/di"
	"github.com/roomnotes/roomnotes-server/internal/logger"
)

func main() {
	injector := di.NewContainer()
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "roomnotes: start: %v\n", err)
		os.Exit(1)
	}
	log := do.MustInvoke[*logger.Logger](injector)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info("stopping roomnotes", "signal", received.String())

	// Handles stop in reverse dependency order: HTTP, then the store, then
	// the hub.
	if err := injector.Shutdown(); err != nil {
		log.Error("stop failed", "error", err)
		os.Exit(1)
	}
	log.Info("roomnotes stopped")
}
