package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	redisserver "github.com/raniellyferreira/redis-inmemory-server"
	"github.com/raniellyferreira/redis-inmemory-server/metrics"
)

func main() {
	var host, configPath, logLevel, metricsAddr string
	var port int
	var helpFlag bool

	flag.StringVar(&host, "host", redisserver.DefaultHost, "Address to listen on")
	flag.StringVar(&host, "H", redisserver.DefaultHost, "Address to listen on (shorthand)")
	flag.IntVar(&port, "port", redisserver.DefaultPort, "Port to listen on")
	flag.IntVar(&port, "p", redisserver.DefaultPort, "Port to listen on (shorthand)")
	flag.StringVar(&configPath, "config", "", "Optional YAML configuration file")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info or error")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9121)")
	flag.BoolVar(&helpFlag, "help", false, "Show help message")

	flag.Parse()

	if helpFlag {
		fmt.Println("In-memory RESP server")
		fmt.Println("=====================")
		fmt.Println("Usage: redis-server [--host=127.0.0.1] [--port=6379] [--config=server.yaml]")
		fmt.Println("")
		fmt.Println("Flags:")
		fmt.Println("  -H, --host    Address to listen on (default 127.0.0.1)")
		fmt.Println("  -p, --port    Port to listen on (default 6379)")
		fmt.Println("  --config      YAML configuration file; flags override it")
		fmt.Println("  --log-level   debug, info or error")
		fmt.Println("  --metrics-addr  Serve Prometheus metrics at /metrics on this address")
		fmt.Println("  --help        Show this help message")
		os.Exit(0)
	}

	var opts []redisserver.Option

	if configPath != "" {
		cfg, err := redisserver.LoadConfigFile(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		opts = append(opts, cfg.Options()...)
		if !flagSet("host", "H") {
			host = cfg.Host
		}
		if !flagSet("port", "p") {
			port = cfg.Port
		}
	}

	opts = append(opts, redisserver.WithHostPort(host, port))
	if logLevel != "" {
		level, err := redisserver.ParseLogLevel(logLevel)
		if err != nil {
			log.Fatalf("Invalid --log-level: %v", err)
		}
		opts = append(opts, redisserver.WithLogLevel(level))
	}

	var metricsServer *http.Server
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector, err := metrics.NewPrometheus(reg)
		if err != nil {
			log.Fatalf("Failed to register metrics: %v", err)
		}
		opts = append(opts, redisserver.WithMetrics(collector))

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server failed: %v", err)
			}
		}()
	}

	srv, err := redisserver.New(opts...)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	<-ctx.Done()
	log.Println("Shutting down...")
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}
}

// flagSet reports whether any of the named flags was given on the command line
func flagSet(names ...string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				set = true
			}
		}
	})
	return set
}
