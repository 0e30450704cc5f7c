package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// DefaultIdleTimeout is how long a connection may stay silent before it is
// closed
const DefaultIdleTimeout = 60 * time.Second

// Logger interface for server logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector interface for server metrics
type MetricsCollector interface {
	RecordCommandProcessed(cmd string, duration time.Duration)
	RecordConnection()
	RecordError(errorType string)
}

// Server accepts RESP connections and runs their commands through a
// Dispatcher
type Server struct {
	storage    storage.Storage
	dispatcher *Dispatcher

	// Server configuration
	addr        string
	idleTimeout time.Duration
	limiter     *rate.Limiter
	logger      Logger
	metrics     MetricsCollector

	// Connection management
	listener net.Listener
	clients  sync.Map // map[net.Conn]*Client

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	connCount    int64
	commandCount int64
	errorCount   int64
	mu           sync.RWMutex
}

// Client represents a connected client
type Client struct {
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	server *Server

	lastCmd time.Time

	// Control
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer creates a new server for addr backed by stor
func NewServer(addr string, stor storage.Storage) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		storage:     stor,
		dispatcher:  NewDispatcher(stor),
		addr:        addr,
		idleTimeout: DefaultIdleTimeout,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		logger:      &nopLogger{},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetLogger sets the server logger
func (s *Server) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics sets the metrics collector
func (s *Server) SetMetrics(metrics MetricsCollector) {
	s.metrics = metrics
}

// SetIdleTimeout sets the per-connection read timeout. Zero disables it.
func (s *Server) SetIdleTimeout(timeout time.Duration) {
	s.idleTimeout = timeout
}

// SetPollInterval sets the BLPOP fallback poll interval
func (s *Server) SetPollInterval(interval time.Duration) {
	s.dispatcher.SetPollInterval(interval)
}

// SetAcceptRate limits accepted connections per second. A rate <= 0 removes
// the limit.
func (s *Server) SetAcceptRate(perSecond float64, burst int) {
	if perSecond <= 0 {
		s.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
}

// SetLuaPoolSize sets how many scripts may run concurrently
func (s *Server) SetLuaPoolSize(n int) {
	s.dispatcher.SetLuaPoolSize(n)
}

// Dispatcher returns the command dispatcher
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Start starts listening and accepting connections
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("Server listening", "addr", s.listener.Addr().String())

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop closes the listener and every client connection, then waits for all
// connection goroutines to finish
func (s *Server) Stop() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	// Close all client connections
	s.clients.Range(func(key, value interface{}) bool {
		if client, ok := value.(*Client); ok {
			client.Close()
		}
		return true
	})

	s.wg.Wait()
	s.dispatcher.Close()

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stats returns server statistics
func (s *Server) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clientCount := 0
	s.clients.Range(func(key, value interface{}) bool {
		clientCount++
		return true
	})

	return map[string]interface{}{
		"connected_clients": clientCount,
		"total_commands":    s.commandCount,
		"total_errors":      s.errorCount,
		"total_connections": s.connCount,
		"keys":              s.storage.KeyCount(),
	}
}

// acceptConnections accepts new client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return // Server is shutting down
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return // Server is shutting down
			}
			s.logger.Error("Accept failed", "error", err)
			continue
		}

		s.handleNewClient(conn)
	}
}

// handleNewClient registers a connection and starts its goroutine
func (s *Server) handleNewClient(conn net.Conn) {
	s.mu.Lock()
	s.connCount++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordConnection()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	client := &Client{
		conn:    conn,
		reader:  protocol.NewReader(conn),
		writer:  protocol.NewWriter(conn),
		server:  s,
		lastCmd: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.clients.Store(conn, client)
	s.logger.Debug("Client connected", "remote", conn.RemoteAddr().String())

	s.wg.Add(1)
	go client.handle()
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
		c.server.clients.Delete(c.conn)
	})
}

// handle reads commands until the connection ends. Malformed requests are
// skipped; any read or write failure closes the connection.
func (c *Client) handle() {
	defer c.server.wg.Done()
	defer c.Close()

	for {
		if c.ctx.Err() != nil {
			return
		}

		if c.server.idleTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.server.idleTimeout))
		}

		cmd, err := c.reader.ReadCommand()
		if err != nil {
			c.readFailed(err)
			return
		}

		if cmd.Empty() {
			continue
		}

		if cmd.Name == "QUIT" {
			c.writer.WriteSimpleString("OK")
			c.writer.Flush()
			return
		}

		c.lastCmd = time.Now()
		reply, gone := c.executeCommand(cmd)
		if gone != nil {
			c.server.dispatcher.Unpop(cmd, reply)
			c.readFailed(gone)
			return
		}

		err = c.writer.WriteValue(reply)
		if err == nil {
			err = c.writer.Flush()
		}
		if err != nil {
			c.server.dispatcher.Unpop(cmd, reply)
			c.server.logger.Error("Write failed", "remote", c.conn.RemoteAddr().String(), "error", err)
			return
		}
	}
}

// watch waits on the connection while a blocking command runs and calls
// cancel if the client goes away or its idle deadline passes. The returned
// function stops watching and must be called before the connection is read
// again; it returns the error that ended the connection, if any.
func (c *Client) watch(cancel context.CancelFunc) func() error {
	var stopping atomic.Bool
	var gone error
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := c.reader.Wait(); err != nil && !stopping.Load() {
			gone = err
			cancel()
		}
	}()

	return func() error {
		stopping.Store(true)
		c.conn.SetReadDeadline(time.Now())
		<-done
		c.conn.SetReadDeadline(time.Time{})
		return gone
	}
}

// readFailed logs why the connection is going away
func (c *Client) readFailed(err error) {
	remote := c.conn.RemoteAddr().String()

	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.server.logger.Debug("Client disconnected", "remote", remote)
	case c.ctx.Err() != nil:
		// Server shutting down
	case errors.As(err, &netErr) && netErr.Timeout():
		c.server.logger.Debug("Client idle timeout", "remote", remote)
	default:
		c.server.logger.Error("Connection fault", "remote", remote, "error", err)
		c.server.recordError("connection")
	}
}

// executeCommand runs cmd through the dispatcher and records stats. For a
// blocking command it also returns the error that ended the connection while
// the command was waiting.
func (c *Client) executeCommand(cmd *protocol.Command) (protocol.Value, error) {
	start := time.Now()

	var reply protocol.Value
	var gone error
	if cmd.Name == "BLPOP" {
		ctx, cancel := context.WithCancel(c.ctx)
		stop := c.watch(cancel)
		reply = c.server.dispatcher.Execute(ctx, cmd)
		gone = stop()
		cancel()
	} else {
		reply = c.server.dispatcher.Execute(c.ctx, cmd)
	}

	c.server.mu.Lock()
	c.server.commandCount++
	c.server.mu.Unlock()

	if c.server.metrics != nil {
		c.server.metrics.RecordCommandProcessed(cmd.Name, time.Since(start))
	}
	if reply.IsError() {
		c.server.recordError("command")
	}

	return reply, gone
}

func (s *Server) recordError(errorType string) {
	s.mu.Lock()
	s.errorCount++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordError(errorType)
	}
}

// nopLogger discards everything
type nopLogger struct{}

func (l *nopLogger) Debug(msg string, fields ...interface{}) {}

func (l *nopLogger) Info(msg string, fields ...interface{}) {}

func (l *nopLogger) Error(msg string, fields ...interface{}) {}
