// Package api exposes the HTTP surface: huma operations for rooms, comments,
// tags, search and auth, plus the realtime websocket and stream endpoints.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roomnotes/roomnotes-server/internal/ratelimit"
	"github.com/roomnotes/roomnotes-server/internal/realtime"
	"github.com/roomnotes/roomnotes-server/internal/service"
	"github.com/roomnotes/roomnotes-server/internal/store"
)

// Services groups the business logic services used by the API server.
type Services struct {
	Rooms    *service.RoomService
	Comments *service.CommentService
	Auth     *service.AuthService
	// Search is nil when the index is disabled.
	Search *service.SearchService
}

// Options configures the HTTP layer.
type Options struct {
	AllowedOrigins []string
	// AuthRate and AuthBurst limit login and registration per client IP.
	AuthRate  float64
	AuthBurst int
}

// Server wires the router, huma API and realtime endpoints together.
type Server struct {
	store           store.Store
	services        *Services
	realtime        *realtime.Server
	router          *chi.Mux
	api             huma.API
	authRateLimiter *ratelimit.KeyedRateLimiter
	logger          *slog.Logger
}

// NewServer creates the API server and registers every route.
func NewServer(st store.Store, services *Services, rt *realtime.Server, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.AuthRate <= 0 {
		opts.AuthRate = ratelimit.PerInterval(20, time.Minute)
	}
	if opts.AuthBurst <= 0 {
		opts.AuthBurst = 10
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(authMiddleware(services.Auth))

	humaConfig := huma.DefaultConfig("Roomnotes API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:           st,
		services:        services,
		realtime:        rt,
		router:          router,
		api:             api,
		authRateLimiter: ratelimit.New(opts.AuthRate, opts.AuthBurst),
		logger:          logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerRoomRoutes()
	s.registerCommentRoutes()
	s.registerSearchRoutes()

	// Upgrades and event streams bypass huma; they own the response writer.
	if s.realtime != nil {
		s.router.Get("/api/v1/ws", s.realtime.ServeWS)
		s.router.Get("/api/v1/stream", s.realtime.ServeStream)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, used for OpenAPI output.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources.
func (s *Server) Close() {
	s.authRateLimiter.Stop()
}
