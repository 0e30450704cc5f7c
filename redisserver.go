package redisserver

import (
	"context"
	"sync"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/server"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// keyCountInterval is how often the key count is reported to metrics
const keyCountInterval = 10 * time.Second

// Server is an in-memory data server speaking the RESP protocol
type Server struct {
	// Configuration
	config *config

	// Components
	storage storage.Storage
	server  *server.Server

	// State
	mu      sync.RWMutex
	started bool
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates a new Server with the given options
//
// The server is created but not started. Use Start() to begin accepting
// connections.
//
// Example:
//
//	srv, err := redisserver.New(
//		redisserver.WithAddr("127.0.0.1:6379"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
func New(opts ...Option) (*Server, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	stor := storage.NewMemory()

	srv := server.NewServer(cfg.addr, stor)
	srv.SetLogger(&loggerAdapter{logger: cfg.logger})
	if cfg.metrics != nil {
		srv.SetMetrics(&metricsAdapter{metrics: cfg.metrics})
	}
	srv.SetIdleTimeout(cfg.idleTimeout)
	srv.SetPollInterval(cfg.pollInterval)
	srv.SetAcceptRate(cfg.acceptRate, cfg.acceptBurst)
	srv.SetLuaPoolSize(cfg.luaPoolSize)

	return &Server{
		config:  cfg,
		storage: stor,
		server:  srv,
		stop:    make(chan struct{}),
	}, nil
}

// Start begins accepting connections. It returns once the listener is bound.
// Cancelling ctx shuts the server down.
//
// Example:
//
//	if err := srv.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if err := s.server.Start(); err != nil {
		s.config.logger.Error("Failed to start server", Field{Key: "error", Value: err}, Field{Key: "addr", Value: s.config.addr})
		return &ConnectionError{Addr: s.config.addr, Err: err}
	}
	s.started = true
	s.recordKeyCount()

	s.wg.Add(1)
	go s.watch(ctx)

	return nil
}

// watch closes the server when ctx ends and reports the key count
func (s *Server) watch(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(keyCountInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			go s.Close()
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.recordKeyCount()
		}
	}
}

func (s *Server) recordKeyCount() {
	if s.config.metrics != nil {
		s.config.metrics.RecordKeyCount(s.storage.KeyCount())
	}
}

// Close stops accepting connections, closes every client and releases the
// data
//
// Example:
//
//	defer srv.Close()
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()

	if err := s.server.Stop(); err != nil {
		s.config.logger.Error("Error stopping server", Field{Key: "error", Value: err})
	}

	return s.storage.Close()
}

// Addr returns the listening address. Before Start it returns the configured
// address.
func (s *Server) Addr() string {
	return s.server.Addr()
}

// Storage returns the underlying storage for direct access
//
// Example:
//
//	value, exists, err := srv.Storage().Get("mykey")
func (s *Server) Storage() storage.Storage {
	return s.storage
}

// Info returns server statistics together with version information
func (s *Server) Info() map[string]interface{} {
	info := s.server.Stats()
	info["version"] = VersionInfo()
	return info
}
