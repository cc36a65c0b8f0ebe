// Package metrics provides the pool's lock-free performance counters.
// Every counter is a plain sync/atomic uint64, written on the hot path
// with no locking; a Snapshot gives callers a coherent-enough read for
// reporting. Each record also mirrors onto a Prometheus collector so the
// same events are visible to a scrape, without adding any locking to the
// atomics themselves.
package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is one authoritative set of counters, constructed once at
// pool startup and passed into the components that write to it. There is
// deliberately no package-level singleton Pool/Selector/Metrics — only
// the Prometheus collectors below are process-wide, because Prometheus
// itself is a process-wide registry by design.
type Registry struct {
	connectionsCreated    atomic.Uint64
	connectionsFailed     atomic.Uint64
	connectionsAcquired   atomic.Uint64
	connectionsReleased   atomic.Uint64
	queriesExecuted       atomic.Uint64
	failedQueries         atomic.Uint64
	reconnectAttempts     atomic.Uint64
	successfulReconnects  atomic.Uint64
	totalAcquireTimeUS    atomic.Uint64
	totalUsageTimeUS      atomic.Uint64
	totalQueryTimeUS      atomic.Uint64

	prom *promCollectors
}

type promCollectors struct {
	connectionsTotal  *prometheus.CounterVec
	connectionsActive prometheus.Gauge
	connectionsIdle   prometheus.Gauge
	queryDuration     prometheus.Histogram
	reconnectsTotal   *prometheus.CounterVec
}

// New constructs a Registry and registers its Prometheus collectors
// against the default registerer via promauto, exactly once per call.
// Pass a distinct namespace per Pool instance if you construct more than
// one in the same process, to avoid a duplicate-registration panic.
func New(namespace string) *Registry {
	r := &Registry{}
	r.prom = &promCollectors{
		connectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total connection lifecycle events by outcome.",
		}, []string{"event"}),
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Sessions currently held by a caller.",
		}),
		connectionsIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_idle",
			Help:      "Sessions currently sitting in the idle queue.",
		}),
		queryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query execution duration, including any internal retries.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		reconnectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts by outcome.",
		}, []string{"outcome"}),
	}
	return r
}

// RecordConnectionCreated increments the connections-created counter.
func (r *Registry) RecordConnectionCreated() {
	r.connectionsCreated.Add(1)
	r.prom.connectionsTotal.WithLabelValues("created").Inc()
}

// RecordConnectionFailed increments the connections-failed counter.
func (r *Registry) RecordConnectionFailed() {
	r.connectionsFailed.Add(1)
	r.prom.connectionsTotal.WithLabelValues("failed").Inc()
}

// RecordConnectionAcquired increments the acquired counter and adds to
// the cumulative acquire-latency bucket.
func (r *Registry) RecordConnectionAcquired(duration time.Duration) {
	r.connectionsAcquired.Add(1)
	r.totalAcquireTimeUS.Add(uint64(duration.Microseconds()))
	r.prom.connectionsTotal.WithLabelValues("acquired").Inc()
}

// RecordConnectionReleased increments the released counter and adds to
// the cumulative usage-time bucket.
func (r *Registry) RecordConnectionReleased(usage time.Duration) {
	r.connectionsReleased.Add(1)
	r.totalUsageTimeUS.Add(uint64(usage.Microseconds()))
	r.prom.connectionsTotal.WithLabelValues("released").Inc()
}

// RecordQueryExecuted increments the query counter (success or failure)
// and adds to the cumulative query-time bucket.
func (r *Registry) RecordQueryExecuted(duration time.Duration, success bool) {
	r.queriesExecuted.Add(1)
	r.totalQueryTimeUS.Add(uint64(duration.Microseconds()))
	if !success {
		r.failedQueries.Add(1)
	}
	r.prom.queryDuration.Observe(duration.Seconds())
}

// RecordReconnect increments the reconnect-attempt counter, and the
// successful-reconnect counter when success is true.
func (r *Registry) RecordReconnect(success bool) {
	r.reconnectAttempts.Add(1)
	outcome := "failure"
	if success {
		r.successfulReconnects.Add(1)
		outcome = "success"
	}
	r.prom.reconnectsTotal.WithLabelValues(outcome).Inc()
}

// SetPoolGauges mirrors the pool's current idle/active counts onto the
// Prometheus gauges. Called by the pool after every state transition.
func (r *Registry) SetPoolGauges(idle, active int) {
	r.prom.connectionsIdle.Set(float64(idle))
	r.prom.connectionsActive.Set(float64(active))
}

// Snapshot is a coherent-enough point-in-time read of every counter.
type Snapshot struct {
	ConnectionsCreated   uint64
	ConnectionsFailed    uint64
	ConnectionsAcquired  uint64
	ConnectionsReleased  uint64
	QueriesExecuted      uint64
	FailedQueries        uint64
	ReconnectAttempts    uint64
	SuccessfulReconnects uint64
	TotalAcquireTimeUS   uint64
	TotalUsageTimeUS     uint64
	TotalQueryTimeUS     uint64
}

// Snapshot takes an acquire-ordered read of every counter. Callers
// should accept small inter-counter skew under concurrent writers.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsCreated:   r.connectionsCreated.Load(),
		ConnectionsFailed:    r.connectionsFailed.Load(),
		ConnectionsAcquired:  r.connectionsAcquired.Load(),
		ConnectionsReleased:  r.connectionsReleased.Load(),
		QueriesExecuted:      r.queriesExecuted.Load(),
		FailedQueries:        r.failedQueries.Load(),
		ReconnectAttempts:    r.reconnectAttempts.Load(),
		SuccessfulReconnects: r.successfulReconnects.Load(),
		TotalAcquireTimeUS:   r.totalAcquireTimeUS.Load(),
		TotalUsageTimeUS:     r.totalUsageTimeUS.Load(),
		TotalQueryTimeUS:     r.totalQueryTimeUS.Load(),
	}
}

// AvgAcquireTimeUS is the mean connection-acquire latency in microseconds.
func (s Snapshot) AvgAcquireTimeUS() float64 {
	return divide(float64(s.TotalAcquireTimeUS), float64(s.ConnectionsAcquired))
}

// AvgUsageTimeUS is the mean connection-usage duration in microseconds.
func (s Snapshot) AvgUsageTimeUS() float64 {
	return divide(float64(s.TotalUsageTimeUS), float64(s.ConnectionsReleased))
}

// AvgQueryTimeUS is the mean query execution duration in microseconds.
func (s Snapshot) AvgQueryTimeUS() float64 {
	return divide(float64(s.TotalQueryTimeUS), float64(s.QueriesExecuted))
}

// ConnectionSuccessRate is the percentage of connection attempts that
// did not fail.
func (s Snapshot) ConnectionSuccessRate() float64 {
	attempts := s.ConnectionsCreated + s.ConnectionsFailed
	return divide(float64(s.ConnectionsCreated)*100, float64(attempts))
}

// QuerySuccessRate is the percentage of executed queries that succeeded.
func (s Snapshot) QuerySuccessRate() float64 {
	return divide(float64(s.QueriesExecuted-s.FailedQueries)*100, float64(s.QueriesExecuted))
}

// ReconnectSuccessRate is the percentage of reconnect attempts that succeeded.
func (s Snapshot) ReconnectSuccessRate() float64 {
	return divide(float64(s.SuccessfulReconnects)*100, float64(s.ReconnectAttempts))
}

func divide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// ExportCSV writes one "metric,value,unit,description" row per counter
// and derived metric, plus a trailing exported_at row, matching the
// report format of the original performance monitor.
func ExportCSV(w io.Writer, snap Snapshot) error {
	rows := [][4]string{
		{"connections_created", fmt.Sprintf("%d", snap.ConnectionsCreated), "count", "cumulative sessions opened"},
		{"connections_failed", fmt.Sprintf("%d", snap.ConnectionsFailed), "count", "cumulative failed connection attempts"},
		{"connections_acquired", fmt.Sprintf("%d", snap.ConnectionsAcquired), "count", "cumulative successful acquires"},
		{"connections_released", fmt.Sprintf("%d", snap.ConnectionsReleased), "count", "cumulative releases"},
		{"queries_executed", fmt.Sprintf("%d", snap.QueriesExecuted), "count", "cumulative query/update executions"},
		{"failed_queries", fmt.Sprintf("%d", snap.FailedQueries), "count", "cumulative failed query/update executions"},
		{"reconnect_attempts", fmt.Sprintf("%d", snap.ReconnectAttempts), "count", "cumulative reconnect attempts"},
		{"successful_reconnects", fmt.Sprintf("%d", snap.SuccessfulReconnects), "count", "cumulative successful reconnects"},
		{"avg_acquire_time_us", fmt.Sprintf("%.2f", snap.AvgAcquireTimeUS()), "microseconds", "mean time spent acquiring a session"},
		{"avg_usage_time_us", fmt.Sprintf("%.2f", snap.AvgUsageTimeUS()), "microseconds", "mean time a session is held before release"},
		{"avg_query_time_us", fmt.Sprintf("%.2f", snap.AvgQueryTimeUS()), "microseconds", "mean query/update execution time"},
		{"connection_success_rate", fmt.Sprintf("%.2f", snap.ConnectionSuccessRate()), "percent", "share of connection attempts that succeeded"},
		{"query_success_rate", fmt.Sprintf("%.2f", snap.QuerySuccessRate()), "percent", "share of executed queries that succeeded"},
		{"reconnect_success_rate", fmt.Sprintf("%.2f", snap.ReconnectSuccessRate()), "percent", "share of reconnect attempts that succeeded"},
	}

	if _, err := io.WriteString(w, "metric,value,unit,description\n"); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%s,%s,%s,%s\n", row[0], row[1], row[2], row[3]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "exported_at,%s,timestamp,time the CSV snapshot was produced\n",
		time.Now().Format(time.RFC3339))
	return err
}
