// Package mdns advertises the server on the local network through the Avahi
// daemon, so clients can find it without configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"
)

const (
	// ServiceType is the DNS-SD service type clients browse for.
	ServiceType = "_roomnotes._tcp"

	// APIVersion is advertised in the TXT record.
	APIVersion = "v1"

	// ServerVersion is advertised in the TXT record.
	ServerVersion = "1.0.0"
)

// Advertisement is what gets published.
type Advertisement struct {
	Name string
	Port int
	// Paths to the realtime endpoints, published so clients can skip discovery requests.
	WebSocketPath string
	StreamPath    string
}

// TXT returns the TXT record entries for the advertisement.
func (a Advertisement) TXT() [][]byte {
	records := []string{
		"name=" + a.Name,
		"version=" + ServerVersion,
		"api=" + APIVersion,
	}
	if a.WebSocketPath != "" {
		records = append(records, "ws="+a.WebSocketPath)
	}
	if a.StreamPath != "" {
		records = append(records, "sse="+a.StreamPath)
	}

	out := make([][]byte, 0, len(records))
	for _, r := range records {
		out = append(out, []byte(r))
	}
	return out
}

// Publisher registers a service with a discovery daemon.
type Publisher interface {
	Publish(ad Advertisement) error
	Close() error
}

// Dialer opens a Publisher.
type Dialer func() (Publisher, error)

// Service manages one advertisement.
type Service struct {
	dial      Dialer
	publisher Publisher
	logger    *slog.Logger
	mu        sync.Mutex
}

// NewService creates a service advertising through Avahi on the system bus.
func NewService(logger *slog.Logger) *Service {
	return NewServiceWithDialer(DialAvahi, logger)
}

// NewServiceWithDialer creates a service using dial to reach the daemon.
func NewServiceWithDialer(dial Dialer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{dial: dial, logger: logger}
}

// Start publishes ad, replacing any earlier advertisement. Errors are usually
// environmental (no D-Bus or no Avahi daemon, as in containers) and callers
// treat them as non-fatal.
func (s *Service) Start(ad Advertisement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	if ad.Name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "roomnotes-server"
		}
		ad.Name = host
	}

	publisher, err := s.dial()
	if err != nil {
		return fmt.Errorf("connect to avahi: %w", err)
	}
	if err := publisher.Publish(ad); err != nil {
		_ = publisher.Close()
		return fmt.Errorf("publish service: %w", err)
	}
	s.publisher = publisher

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"name", ad.Name,
		"port", ad.Port)
	return nil
}

// Running reports whether an advertisement is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publisher != nil
}

// Stop withdraws the advertisement. Safe to call when not started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn("mDNS withdraw failed", "error", err)
	}
	s.publisher = nil
	s.logger.Info("mDNS advertisement stopped")
}

// avahiPublisher publishes through an Avahi entry group.
type avahiPublisher struct {
	conn   *dbus.Conn
	server *avahi.Server
	group  *avahi.EntryGroup
}

// DialAvahi connects to the Avahi daemon over the system D-Bus.
func DialAvahi() (Publisher, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	server, err := avahi.ServerNew(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("avahi server: %w", err)
	}
	group, err := server.EntryGroupNew()
	if err != nil {
		server.Close()
		conn.Close()
		return nil, fmt.Errorf("avahi entry group: %w", err)
	}
	return &avahiPublisher{conn: conn, server: server, group: group}, nil
}

func (p *avahiPublisher) Publish(ad Advertisement) error {
	err := p.group.AddService(
		avahi.InterfaceUnspec,
		avahi.ProtoUnspec,
		0,
		ad.Name,
		ServiceType,
		"local",
		"",
		uint16(ad.Port),
		ad.TXT(),
	)
	if err != nil {
		return err
	}
	return p.group.Commit()
}

func (p *avahiPublisher) Close() error {
	err := p.group.Reset()
	p.server.EntryGroupFree(p.group)
	p.server.Close()
	if closeErr := p.conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
