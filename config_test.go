package redisserver_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	redisserver "github.com/raniellyferreira/redis-inmemory-server"
)

func TestParseConfig(t *testing.T) {
	cfg, err := redisserver.ParseConfig(strings.NewReader(`
host: 0.0.0.0
port: 6380
idle_timeout: 5m
poll_interval: 25ms
accept_rate: 200
accept_burst: 20
lua_pool_size: 4
log_level: debug
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	want := redisserver.FileConfig{
		Host:         "0.0.0.0",
		Port:         6380,
		IdleTimeout:  5 * time.Minute,
		PollInterval: 25 * time.Millisecond,
		AcceptRate:   200,
		AcceptBurst:  20,
		LuaPoolSize:  4,
		LogLevel:     "debug",
	}
	if cfg.Host != want.Host || cfg.Port != want.Port || cfg.IdleTimeout != want.IdleTimeout ||
		cfg.PollInterval != want.PollInterval || cfg.AcceptRate != want.AcceptRate ||
		cfg.AcceptBurst != want.AcceptBurst || cfg.LuaPoolSize != want.LuaPoolSize || cfg.LogLevel != want.LogLevel {
		t.Errorf("ParseConfig() = %+v, want %+v", *cfg, want)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := redisserver.ParseConfig(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.Host != redisserver.DefaultHost || cfg.Port != redisserver.DefaultPort || cfg.LogLevel != "info" {
		t.Errorf("defaults = %+v", *cfg)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		problem string
	}{
		{"unknown key", "hots: 127.0.0.1\n", "hots"},
		{"port out of range", "port: 99999\n", "port 99999 out of range"},
		{"negative timeout", "idle_timeout: -1s\n", "idle_timeout"},
		{"bad log level", "log_level: loud\n", "unknown log level"},
		{"bad duration", "poll_interval: soon\n", "time.Duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := redisserver.ParseConfig(strings.NewReader(tt.yaml))
			if !errors.Is(err, redisserver.ErrInvalidConfig) {
				t.Fatalf("ParseConfig() error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("ParseConfig() error = %q, want mention of %q", err.Error(), tt.problem)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte("host: 127.0.0.1\nport: 0\nlua_pool_size: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := redisserver.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if cfg.LuaPoolSize != 2 {
		t.Errorf("LuaPoolSize = %d, want 2", cfg.LuaPoolSize)
	}

	srv, err := redisserver.New(cfg.Options()...)
	if err != nil {
		t.Fatalf("New() with file options error = %v", err)
	}
	defer srv.Close()

	if srv.Addr() != "127.0.0.1:6379" {
		t.Errorf("Addr() = %q, want default port applied", srv.Addr())
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	if _, err := redisserver.LoadConfigFile(""); !errors.Is(err, redisserver.ErrInvalidConfig) {
		t.Errorf("empty path error = %v, want ErrInvalidConfig", err)
	}

	if _, err := redisserver.LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: -5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := redisserver.LoadConfigFile(path)
	var cfgErr *redisserver.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Path != path {
		t.Errorf("LoadConfigFile() error = %v, want ConfigError for %s", err, path)
	}
}
