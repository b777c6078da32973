package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/braindump/internal/store"
)

const namespace = "braindump"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	dbConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connected",
			Help:      "1 when the last storage probe succeeded, 0 otherwise.",
		},
	)
	dbProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "probes_total",
			Help:      "Storage probes by source and result.",
		}, []string{"source", "result"},
	)
	dbConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "consecutive_failures",
			Help:      "Current background probe failure streak.",
		},
	)
	poolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections",
			Help:      "Storage pool connections by state (total, idle, waiting).",
		}, []string{"state"},
	)
	reconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconnect",
			Name:      "attempts_total",
			Help:      "Reconnection attempts by result.",
		}, []string{"result"},
	)
	reconnectChains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconnect",
			Name:      "chains_total",
			Help:      "Finished backoff chains by outcome (recovered, given_up).",
		}, []string{"outcome"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"},
	)
	processMemoryMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "memory_mb",
			Help:      "Go heap of the server process in MB at the last health check.",
		},
	)
	processRSSBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "rss_bytes",
			Help:      "Resident set size of the server process at the last health check.",
		},
	)
	historyEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "events_total",
			Help:      "Connection history deliveries by result (sent, failed, dropped).",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{dbConnected, dbProbes, dbConsecutiveFailures, poolConnections,
		reconnectAttempts, reconnectChains, httpRequests, httpDuration, processMemoryMB, processRSSBytes, historyEvents}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has succeeded.

func RecordProbe(source string, ok bool) {
	if !regOK.Load() {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	dbProbes.WithLabelValues(source, result).Inc()
	SetConnected(ok)
}

func SetConnected(ok bool) {
	if regOK.Load() {
		v := 0.0
		if ok {
			v = 1
		}
		dbConnected.Set(v)
	}
}

func SetConsecutiveFailures(n int) {
	if regOK.Load() {
		dbConsecutiveFailures.Set(float64(n))
	}
}

func SetPoolStats(s store.PoolStats) {
	if regOK.Load() {
		poolConnections.WithLabelValues("total").Set(float64(s.Total))
		poolConnections.WithLabelValues("idle").Set(float64(s.Idle))
		poolConnections.WithLabelValues("waiting").Set(float64(s.Waiting))
	}
}

func IncReconnectAttempt(ok bool) {
	if regOK.Load() {
		result := "failure"
		if ok {
			result = "success"
		}
		reconnectAttempts.WithLabelValues(result).Inc()
	}
}

func IncReconnectChain(outcome string) {
	if regOK.Load() {
		reconnectChains.WithLabelValues(outcome).Inc()
	}
}

func ObserveHTTP(route, method, code string, seconds float64) {
	if regOK.Load() {
		httpRequests.WithLabelValues(route, method, code).Inc()
		httpDuration.WithLabelValues(route, method).Observe(seconds)
	}
}

// SetProcessMemory exports a sample. RSS is left untouched when the sample
// has none.
func SetProcessMemory(s MemorySample) {
	if !regOK.Load() {
		return
	}
	processMemoryMB.Set(s.HeapMB)
	if s.RSSBytes > 0 {
		processRSSBytes.Set(float64(s.RSSBytes))
	}
}

func IncHistoryEvent(result string) {
	if regOK.Load() {
		historyEvents.WithLabelValues(result).Inc()
	}
}
