// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zehem"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of RPCs handled, by procedure and result code.",
		},
		[]string{"procedure", "code"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of RPCs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"procedure"},
	)

	messagesAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "appended_total",
			Help:      "Total number of messages appended.",
		},
	)

	mentionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "mentions_created_total",
			Help:      "Total number of mention records created.",
		},
		[]string{"mention_all"},
	)

	ledgerDeltas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "deltas_total",
			Help:      "Total number of balance mutations, by action and whether the debit was clamped.",
		},
		[]string{"action", "clamped"},
	)

	realtimeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Current number of in-process store subscriptions.",
		},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Current number of open WebSocket viewers.",
		},
	)

	relayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Total number of realtime events relayed across instances.",
		},
		[]string{"direction"},
	)
)

func init() {
	Registry.MustRegister(
		rpcRequests,
		rpcDuration,
		messagesAppended,
		mentionsCreated,
		ledgerDeltas,
		realtimeSubscribers,
		wsConnections,
		relayEvents,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRPC records one completed RPC.
func RecordRPC(procedure, code string, duration time.Duration) {
	rpcRequests.WithLabelValues(procedure, code).Inc()
	rpcDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

// RecordMessage records an appended message and the mentions it produced.
func RecordMessage(mentions int, mentionAll bool) {
	messagesAppended.Inc()
	mentionsCreated.WithLabelValues(strconv.FormatBool(mentionAll)).Add(float64(mentions))
}

// RecordLedger records one balance mutation.
func RecordLedger(action string, clamped bool) {
	ledgerDeltas.WithLabelValues(action, strconv.FormatBool(clamped)).Inc()
}

// SetSubscribers sets the current store subscription count.
func SetSubscribers(n int) {
	realtimeSubscribers.Set(float64(n))
}

// WSConnected increments the open WebSocket gauge.
func WSConnected() { wsConnections.Inc() }

// WSDisconnected decrements the open WebSocket gauge.
func WSDisconnected() { wsConnections.Dec() }

// RecordRelay counts one relayed event; direction is "out", "in" or
// "dropped" for events discarded because the publish queue was full.
func RecordRelay(direction string) {
	relayEvents.WithLabelValues(direction).Inc()
}
