package redisserver

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for specific failure scenarios
var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the server has been closed
	ErrClosed = errors.New("server is closed")

	// ErrAlreadyStarted indicates Start was called twice
	ErrAlreadyStarted = errors.New("server already started")
)

// ConnectionError represents a listener or connection error
type ConnectionError struct {
	Addr string
	Err  error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error on %s: %v", e.Addr, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConfigError collects the problems found in a configuration file
type ConfigError struct {
	Path     string
	Problems []string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid configuration")
	if e.Path != "" {
		b.WriteString(" in ")
		b.WriteString(e.Path)
	}
	for _, p := range e.Problems {
		b.WriteString("\n - ")
		b.WriteString(p)
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrInvalidConfig
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
