// Package metrics provides a Prometheus backed metrics collector for the
// server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "redis_inmemory"

// Prometheus records server activity as Prometheus metrics. It satisfies
// redisserver.MetricsCollector.
type Prometheus struct {
	commands    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	connections prometheus.Counter
	keys        prometheus.Gauge
}

// NewPrometheus creates the collector and registers its metrics with reg
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands processed, by command name.",
		}, []string{"cmd"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command execution time, by command name.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"cmd"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors, by type.",
		}, []string{"type"}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted client connections.",
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys",
			Help:      "Number of live keys.",
		}),
	}

	for _, c := range []prometheus.Collector{p.commands, p.duration, p.errors, p.connections, p.keys} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RecordCommandProcessed(cmd string, duration time.Duration) {
	p.commands.WithLabelValues(cmd).Inc()
	p.duration.WithLabelValues(cmd).Observe(duration.Seconds())
}

func (p *Prometheus) RecordConnection() {
	p.connections.Inc()
}

func (p *Prometheus) RecordKeyCount(count int64) {
	p.keys.Set(float64(count))
}

func (p *Prometheus) RecordError(errorType string) {
	p.errors.WithLabelValues(errorType).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
