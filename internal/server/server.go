// Package server exposes the authoritative board state over HTTP: a REST
// Mutation API per entity kind and a websocket realtime channel per board.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/zeusync/boardsync/internal/collab/memapi"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/internal/realtime"
)

// Server serves one memapi.Server and its realtime hub.
type Server struct {
	api      *memapi.Server
	hub      *realtime.Hub
	upgrader websocket.Upgrader

	http     *http.Server
	listener net.Listener

	// Client management
	clients     sync.Map // map[string]*clientConn
	clientCount int64    // atomic

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	config Config
	logger log.Log

	// Background workers
	workerGroup sync.WaitGroup
	stopChan    chan struct{}
}

// Config holds server configuration
type Config struct {
	ListenAddr string
	MaxClients int

	// Message settings
	MaxMessageSize int64
	WriteTimeout   time.Duration

	// Presence announcements accepted per connection. Joins are never limited.
	PresenceRate  rate.Limit
	PresenceBurst int

	// Health monitoring
	HealthCheckInterval time.Duration
	ClientTimeout       time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:          "127.0.0.1:8080",
		MaxClients:          10_000,
		MaxMessageSize:      64 * 1024,
		WriteTimeout:        10 * time.Second,
		PresenceRate:        30,
		PresenceBurst:       10,
		HealthCheckInterval: 30 * time.Second,
		ClientTimeout:       5 * time.Minute,
	}
}

func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("listen address: %w", ErrInvalidConfig)
	case c.MaxClients <= 0:
		return fmt.Errorf("max clients %d: %w", c.MaxClients, ErrInvalidConfig)
	case c.PresenceRate <= 0 || c.PresenceBurst <= 0:
		return fmt.Errorf("presence rate %v burst %d: %w", c.PresenceRate, c.PresenceBurst, ErrInvalidConfig)
	case c.HealthCheckInterval <= 0 || c.ClientTimeout <= 0:
		return fmt.Errorf("health check settings: %w", ErrInvalidConfig)
	}
	return nil
}

// NewServer creates a board server around api and hub. api publishes into
// hub, so both must be built from the same hub.
func NewServer(config Config, api *memapi.Server, hub *realtime.Hub, logger log.Log) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	server := &Server{
		api: api,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		config:   config,
		logger:   logger.With(log.String("component", "server")),
		stopChan: make(chan struct{}),
	}

	server.logger.Info("Server created",
		log.String("listen_addr", config.ListenAddr),
		log.Int("max_clients", config.MaxClients))

	return server
}

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return err
	}
	s.listener = listener
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Server listening", log.String("addr", listener.Addr().String()))

	s.startWorkers()

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped unexpectedly", log.Error(err))
		}
	}()

	s.logger.Info("Server started successfully")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	close(s.stopChan)

	// websocket connections are hijacked, Shutdown does not wait for them
	s.clients.Range(func(_, value any) bool {
		value.(*clientConn).close()
		return true
	})

	err := s.http.Shutdown(ctx)
	s.stopWorkers()

	s.logger.Info("Server stopped")
	return err
}

// Close closes the server and releases all resources
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil // Already closed
	}

	s.logger.Info("Closing server")

	if atomic.LoadInt32(&s.running) == 1 {
		_ = s.Stop(context.Background())
	}
	s.hub.Close()

	s.logger.Info("Server closed")
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.ListenAddr
	}
	return s.listener.Addr().String()
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	return Stats{
		ClientCount: atomic.LoadInt64(&s.clientCount),
		Running:     atomic.LoadInt32(&s.running) == 1,
	}
}

// Stats contains server statistics
type Stats struct {
	ClientCount int64
	Running     bool
}

// startWorkers starts background worker goroutines
func (s *Server) startWorkers() {
	s.workerGroup.Add(1)

	// Health monitor
	go func() {
		defer s.workerGroup.Done()
		s.healthMonitor()
	}()
}

// stopWorkers stops background worker goroutines
func (s *Server) stopWorkers() {
	s.workerGroup.Wait()
}

// healthMonitor monitors client health
func (s *Server) healthMonitor() {
	s.logger.Debug("Health monitor started")

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthChecks()
		case <-s.stopChan:
			s.logger.Debug("Health monitor stopped")
			return
		}
	}
}

// performHealthChecks disconnects clients that sent nothing within
// ClientTimeout.
func (s *Server) performHealthChecks() {
	cutoff := time.Now().Add(-s.config.ClientTimeout).UnixNano()

	var disconnected []string
	s.clients.Range(func(key, value any) bool {
		client := value.(*clientConn)
		if atomic.LoadInt64(&client.lastSeen) < cutoff {
			disconnected = append(disconnected, key.(string))
			client.close()
		}
		return true
	})

	if len(disconnected) > 0 {
		s.logger.Info("Health check completed",
			log.Int("disconnected_clients", len(disconnected)),
			log.Int64("active_clients", atomic.LoadInt64(&s.clientCount)))
	}
}
