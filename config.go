package redisserver

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file layout
//
//	host: 127.0.0.1
//	port: 6379
//	idle_timeout: 60s
//	poll_interval: 100ms
//	accept_rate: 0
//	accept_burst: 0
//	lua_pool_size: 8
//	log_level: info
type FileConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	AcceptRate   float64       `yaml:"accept_rate"`
	AcceptBurst  int           `yaml:"accept_burst"`
	LuaPoolSize  int           `yaml:"lua_pool_size"`
	LogLevel     string        `yaml:"log_level"`

	path string
}

// LoadConfigFile reads and validates a YAML configuration file
func LoadConfigFile(path string) (*FileConfig, error) {
	if path == "" {
		return nil, &ConfigError{Problems: []string{"config file path is empty"}}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := ParseConfig(bytes.NewReader(data))
	if err != nil {
		if cfgErr, ok := err.(*ConfigError); ok {
			cfgErr.Path = path
		}
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// ParseConfig decodes YAML configuration, fills in defaults and validates it.
// Unknown keys are rejected.
func ParseConfig(r io.Reader) (*FileConfig, error) {
	cfg := &FileConfig{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, &ConfigError{Problems: []string{err.Error()}}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults populates default values
func (c *FileConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports every invalid setting at once
func (c *FileConfig) Validate() error {
	var problems []string

	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.IdleTimeout < 0 {
		problems = append(problems, "idle_timeout must not be negative")
	}
	if c.PollInterval < 0 {
		problems = append(problems, "poll_interval must not be negative")
	}
	if c.AcceptRate < 0 || c.AcceptBurst < 0 {
		problems = append(problems, "accept_rate and accept_burst must not be negative")
	}
	if c.LuaPoolSize < 0 {
		problems = append(problems, "lua_pool_size must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return &ConfigError{Path: c.path, Problems: problems}
	}
	return nil
}

// Options converts the file settings into Server options. Zero values keep
// the defaults.
func (c *FileConfig) Options() []Option {
	opts := []Option{
		WithHostPort(c.Host, c.Port),
		WithAcceptRate(c.AcceptRate, c.AcceptBurst),
	}

	if c.IdleTimeout > 0 {
		opts = append(opts, WithIdleTimeout(c.IdleTimeout))
	}
	if c.PollInterval > 0 {
		opts = append(opts, WithPollInterval(c.PollInterval))
	}
	if c.LuaPoolSize > 0 {
		opts = append(opts, WithLuaPoolSize(c.LuaPoolSize))
	}
	if level, err := ParseLogLevel(c.LogLevel); err == nil {
		opts = append(opts, WithLogLevel(level))
	}

	return opts
}
