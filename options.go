package redisserver

import (
	"net"
	"strconv"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/lua"
	"github.com/raniellyferreira/redis-inmemory-server/server"
)

// Default listen settings
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 6379
)

// config holds the configuration for a Server
type config struct {
	addr string

	// Connection handling
	idleTimeout  time.Duration
	pollInterval time.Duration
	acceptRate   float64
	acceptBurst  int

	// Scripting
	luaPoolSize int

	// Observability
	logger  Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		addr:         net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultPort)),
		idleTimeout:  server.DefaultIdleTimeout,
		pollInterval: server.DefaultPollInterval,
		luaPoolSize:  lua.DefaultMaxStates,
		logger:       &defaultLogger{level: LogLevelInfo},
	}
}

// Option represents a configuration option for a Server
type Option func(*config) error

// WithAddr sets the listen address
//
// Example:
//
//	WithAddr("127.0.0.1:6379")
//	WithAddr(":0") // random port
func WithAddr(addr string) Option {
	return func(c *config) error {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return &ConnectionError{Addr: addr, Err: ErrInvalidConfig}
		}
		c.addr = addr
		return nil
	}
}

// WithHostPort sets the listen address from a host and a port
//
// Example:
//
//	WithHostPort("0.0.0.0", 6380)
func WithHostPort(host string, port int) Option {
	return func(c *config) error {
		if port < 0 || port > 65535 {
			return ErrInvalidConfig
		}
		c.addr = net.JoinHostPort(host, strconv.Itoa(port))
		return nil
	}
}

// WithIdleTimeout sets how long a connection may stay silent before it is
// closed. Zero disables the timeout.
//
// Example:
//
//	WithIdleTimeout(5 * time.Minute)
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.idleTimeout = timeout
		return nil
	}
}

// WithPollInterval sets how often a blocked BLPOP re-checks its keys in
// addition to push notifications
//
// Example:
//
//	WithPollInterval(50 * time.Millisecond)
func WithPollInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval <= 0 {
			return ErrInvalidConfig
		}
		c.pollInterval = interval
		return nil
	}
}

// WithAcceptRate limits new connections per second. A rate of 0 means
// unlimited.
//
// Example:
//
//	WithAcceptRate(500, 50)
func WithAcceptRate(perSecond float64, burst int) Option {
	return func(c *config) error {
		if perSecond < 0 || burst < 0 {
			return ErrInvalidConfig
		}
		c.acceptRate = perSecond
		c.acceptBurst = burst
		return nil
	}
}

// WithLuaPoolSize sets how many Lua scripts may run at once
//
// Example:
//
//	WithLuaPoolSize(16)
func WithLuaPoolSize(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return ErrInvalidConfig
		}
		c.luaPoolSize = n
		return nil
	}
}

// WithLogger sets a custom logger for the server
//
// Example:
//
//	WithLogger(myCustomLogger)
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithLogLevel sets the level of the default logger. It has no effect on a
// logger set with WithLogger.
//
// Example:
//
//	WithLogLevel(LogLevelDebug)
func WithLogLevel(level LogLevel) Option {
	return func(c *config) error {
		if l, ok := c.logger.(*defaultLogger); ok {
			l.level = level
		}
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
//
// Example:
//
//	WithMetrics(myMetricsCollector)
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}
