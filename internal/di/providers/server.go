package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/roomnotes/roomnotes-server/internal/api"
	"github.com/roomnotes/roomnotes-server/internal/config"
	"github.com/roomnotes/roomnotes-server/internal/logger"
	"github.com/roomnotes/roomnotes-server/internal/mdns"
	"github.com/roomnotes/roomnotes-server/internal/publish"
	"github.com/roomnotes/roomnotes-server/internal/realtime"
	"github.com/roomnotes/roomnotes-server/internal/service"
)

// Realtime endpoint paths, shared by the router and the mDNS advertisement.
const (
	webSocketPath = "/api/v1/ws"
	streamPath    = "/api/v1/stream"
)

// shutdownTimeout bounds how long the HTTP server and the store get to drain.
const shutdownTimeout = 30 * time.Second

// RealtimeServerHandle wraps the realtime server.
type RealtimeServerHandle struct {
	*realtime.Server
}

// ProvideRealtimeServer provides the subscription and method server.
func ProvideRealtimeServer(i do.Injector) (*RealtimeServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	hub := do.MustInvoke[*HubHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	rooms := do.MustInvoke[*service.RoomService](i)
	comments := do.MustInvoke[*service.CommentService](i)
	authService := do.MustInvoke[*service.AuthService](i)

	rt := realtime.NewServer(realtime.Options{
		Hub:            hub.Hub,
		Registry:       publish.Default(storeHandle.Store),
		Methods:        realtime.NewMethods(rooms, comments),
		Auth:           authService,
		AllowAnonymous: cfg.Realtime.AllowAnonymous,
		SessionBuffer:  cfg.Realtime.SessionBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WriteTimeout:   cfg.Server.WriteTimeout,
		Logger:         log.Component("realtime").Logger,
	})

	log.Info("Realtime server ready",
		"heartbeat_interval", cfg.Realtime.HeartbeatInterval,
		"allow_anonymous", cfg.Realtime.AllowAnonymous,
	)

	return &RealtimeServerHandle{Server: rt}, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer h.api.Close()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	rt := do.MustInvoke[*RealtimeServerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := &api.Services{
		Rooms:    do.MustInvoke[*service.RoomService](i),
		Comments: do.MustInvoke[*service.CommentService](i),
		Auth:     do.MustInvoke[*service.AuthService](i),
		Search:   do.MustInvoke[*service.SearchService](i),
	}

	handler := api.NewServer(storeHandle.Store, services, rt.Server, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log.Component("api").Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr, "websocket", webSocketPath, "stream", streamPath)

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}

// MDNSServiceHandle wraps mdns.Service with Shutdownable.
type MDNSServiceHandle struct {
	*mdns.Service
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *MDNSServiceHandle) Shutdown() error {
	if h.started && h.Service != nil {
		h.Stop()
	}
	return nil
}

// ProvideMDNSService provides the mDNS advertisement service.
func ProvideMDNSService(i do.Injector) (*MDNSServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Server.AdvertiseMDNS {
		log.Info("mDNS advertisement disabled by configuration")
		return &MDNSServiceHandle{Service: nil, started: false}, nil
	}

	svc := mdns.NewService(log.Component("mdns").Logger)

	port := 8080
	if _, err := fmt.Sscanf(cfg.Server.Port, "%d", &port); err != nil {
		log.Warn("Failed to parse server port for mDNS, using default", "port", cfg.Server.Port)
	}

	err := svc.Start(mdns.Advertisement{
		Name:          cfg.Server.Name,
		Port:          port,
		WebSocketPath: webSocketPath,
		StreamPath:    streamPath,
	})
	if err != nil {
		log.Warn("mDNS advertisement unavailable", "error", err)
		// Non-fatal: server works without mDNS (e.g., Docker, cloud)
		return &MDNSServiceHandle{Service: svc, started: false}, nil
	}

	return &MDNSServiceHandle{Service: svc, started: true}, nil
}
