package main

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// telemetryCounters aggregates server activity for the diagnostics endpoint.
// The same events also feed the Prometheus registry.
type telemetryCounters struct {
	connections        atomic.Int64
	bytesSent          atomic.Uint64
	broadcasts         atomic.Uint64
	commandsApplied    atomic.Uint64
	commandsRejected   atomic.Uint64
	commandsDuplicate  atomic.Uint64
	ticksTotal         atomic.Uint64
	tickDurationMillis atomic.Int64
}

type telemetrySnapshot struct {
	Connections       int64  `json:"connections"`
	BytesSent         uint64 `json:"bytesSent"`
	Broadcasts        uint64 `json:"broadcasts"`
	CommandsApplied   uint64 `json:"commandsApplied"`
	CommandsRejected  uint64 `json:"commandsRejected"`
	CommandsDuplicate uint64 `json:"commandsDuplicate"`
	TicksTotal        uint64 `json:"ticksTotal"`
	TickDuration      int64  `json:"tickDurationMillis"`
}

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "firedrill_ws_connections",
		Help: "Open WebSocket connections.",
	})
	metricBroadcastBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firedrill_broadcast_bytes_total",
		Help: "Bytes written to subscribers.",
	})
	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firedrill_commands_total",
		Help: "Commands processed, by outcome.",
	}, []string{"outcome"})
	metricTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "firedrill_tick_duration_seconds",
		Help:    "Wall time spent per simulation tick.",
		Buckets: prometheus.DefBuckets,
	})
)

func newTelemetryCounters() *telemetryCounters {
	return &telemetryCounters{}
}

func (t *telemetryCounters) IncrementConnections() {
	t.connections.Add(1)
	metricConnections.Inc()
}

func (t *telemetryCounters) DecrementConnections() {
	t.connections.Add(-1)
	metricConnections.Dec()
}

func (t *telemetryCounters) RecordBroadcast(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	t.bytesSent.Add(uint64(bytes))
	t.broadcasts.Add(1)
	metricBroadcastBytes.Add(float64(bytes))
}

func (t *telemetryCounters) RecordCommand(outcome string) {
	switch outcome {
	case "applied":
		t.commandsApplied.Add(1)
	case "duplicate":
		t.commandsDuplicate.Add(1)
	default:
		t.commandsRejected.Add(1)
	}
	metricCommands.WithLabelValues(outcome).Inc()
}

func (t *telemetryCounters) RecordTick(duration time.Duration) {
	t.ticksTotal.Add(1)
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	t.tickDurationMillis.Store(millis)
	metricTickDuration.Observe(duration.Seconds())
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		Connections:       t.connections.Load(),
		BytesSent:         t.bytesSent.Load(),
		Broadcasts:        t.broadcasts.Load(),
		CommandsApplied:   t.commandsApplied.Load(),
		CommandsRejected:  t.commandsRejected.Load(),
		CommandsDuplicate: t.commandsDuplicate.Load(),
		TicksTotal:        t.ticksTotal.Load(),
		TickDuration:      t.tickDurationMillis.Load(),
	}
}
