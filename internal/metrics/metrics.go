// Package metrics exposes beacon counters and the last sample over Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"aprstar/internal/sensor"
)

// Collector bundles the beacon metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	LinesSent       *prometheus.CounterVec
	SendFailures    *prometheus.CounterVec
	ConnectAttempts prometheus.Counter
	Sequence        prometheus.Gauge
	Temperature     prometheus.Gauge
	Load15          prometheus.Gauge
	FreeMemoryMB    prometheus.Gauge
}

// NewCollector registers the beacon metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		LinesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aprstar_lines_sent_total",
			Help: "APRS-IS lines written, labeled by kind (position, parm, eqns, data).",
		}, []string{"kind"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aprstar_send_failures_total",
			Help: "APRS-IS lines that failed to send, labeled by kind.",
		}, []string{"kind"}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aprstar_connect_attempts_total",
			Help: "APRS-IS connection attempts.",
		}),
		Sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aprstar_sequence",
			Help: "Last telemetry sequence number sent.",
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aprstar_temperature_raw",
			Help: "Last raw thermal zone reading.",
		}),
		Load15: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aprstar_load15_milli",
			Help: "Last 15 minute load average x1000.",
		}),
		FreeMemoryMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aprstar_free_memory_megabytes",
			Help: "Last available memory reading in MB.",
		}),
	}

	collectors := map[string]prometheus.Collector{
		"aprstar_lines_sent_total":       c.LinesSent,
		"aprstar_send_failures_total":    c.SendFailures,
		"aprstar_connect_attempts_total": c.ConnectAttempts,
		"aprstar_sequence":               c.Sequence,
		"aprstar_temperature_raw":        c.Temperature,
		"aprstar_load15_milli":           c.Load15,
		"aprstar_free_memory_megabytes":  c.FreeMemoryMB,
	}
	for name, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering %s: %w", name, err)
		}
	}
	return c, nil
}

// LineSent records the outcome of one send.
func (c *Collector) LineSent(kind string, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.SendFailures.WithLabelValues(kind).Inc()
		return
	}
	c.LinesSent.WithLabelValues(kind).Inc()
}

// ConnectAttempt counts one dial.
func (c *Collector) ConnectAttempt() {
	if c == nil {
		return
	}
	c.ConnectAttempts.Inc()
}

// Observe records the sequence number and sample of a cycle.
func (c *Collector) Observe(seq int, s sensor.Sample) {
	if c == nil {
		return
	}
	c.Sequence.Set(float64(seq))
	c.Temperature.Set(float64(s.Temperature))
	c.Load15.Set(float64(s.Load15))
	c.FreeMemoryMB.Set(float64(s.FreeMemoryMB))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics on %s: %w", addr, err)
	}
	return nil
}
