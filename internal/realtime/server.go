package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roomnotes/roomnotes-server/internal/domain"
	"github.com/roomnotes/roomnotes-server/internal/publish"
)

// Authenticator resolves an access token to its user.
type Authenticator interface {
	VerifyAccessToken(ctx context.Context, token string) (*domain.User, error)
}

// Options configures a Server.
type Options struct {
	Hub            *Hub
	Registry       *publish.Registry
	Methods        *Methods
	Auth           Authenticator
	AllowAnonymous bool
	SessionBuffer  int
	// AllowedOrigins limits browser WebSocket origins. Empty or "*" allows any.
	AllowedOrigins []string
	// WriteTimeout bounds each write to a client. Defaults to 10 seconds.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server serves realtime sessions over WebSocket and server-sent events.
type Server struct {
	hub            *Hub
	registry       *publish.Registry
	methods        *Methods
	auth           Authenticator
	allowAnonymous atomic.Bool
	sessionBuffer  int
	allowedOrigins []string
	writeTimeout   time.Duration
	logger         *slog.Logger
}

// NewServer creates a realtime server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	s := &Server{
		hub:            opts.Hub,
		registry:       opts.Registry,
		methods:        opts.Methods,
		auth:           opts.Auth,
		sessionBuffer:  opts.SessionBuffer,
		allowedOrigins: opts.AllowedOrigins,
		writeTimeout:   writeTimeout,
		logger:         logger,
	}
	s.allowAnonymous.Store(opts.AllowAnonymous)
	return s
}

// AllowAnonymous reports whether sessions without a user may call methods.
func (s *Server) AllowAnonymous() bool {
	return s.allowAnonymous.Load()
}

// SetAllowAnonymous changes anonymous method access for every session.
func (s *Server) SetAllowAnonymous(allow bool) {
	s.allowAnonymous.Store(allow)
}

// Hub returns the hub sessions register with.
func (s *Server) Hub() *Hub {
	return s.hub
}

// NewSession creates a session for user and registers it with the hub.
// Callers must Unregister it when the connection ends.
func (s *Server) NewSession(user *domain.User) *Session {
	session := newSession(s, user, s.sessionBuffer)
	s.hub.Register(session)
	return session
}

// authenticate resolves the request's token, if any. A request without a
// token is anonymous; a request with a bad token is rejected.
func (s *Server) authenticate(r *http.Request) (*domain.User, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" || s.auth == nil {
		return nil, nil
	}
	return s.auth.VerifyAccessToken(r.Context(), token)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
