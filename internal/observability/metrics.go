package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicematch_http_requests_total",
			Help: "Total number of HTTP requests processed by the voicematch service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicematch_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voicematch_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicematch_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicematch_queue_depth",
			Help: "Number of users currently waiting in the matchmaking queue.",
		},
	)
	matchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicematch_matches_total",
			Help: "Total number of call sessions created by the matchmaker.",
		},
	)
	callsEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicematch_calls_ended_total",
			Help: "Total number of call end transitions, by origin.",
		},
		[]string{"origin"},
	)
	signalsRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicematch_signals_relayed_total",
			Help: "Total number of signaling envelopes appended to the relay.",
		},
		[]string{"signal_type"},
	)
	signalsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicematch_signals_purged_total",
			Help: "Total number of signaling envelopes garbage-collected after call end.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicematch_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		queueDepth,
		matchesTotal,
		callsEndedTotal,
		signalsRelayedTotal,
		signalsPurgedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func IncMatches() {
	matchesTotal.Inc()
}

func IncCallsEnded(origin string) {
	callsEndedTotal.WithLabelValues(origin).Inc()
}

func IncSignalsRelayed(signalType string) {
	signalsRelayedTotal.WithLabelValues(signalType).Inc()
}

func AddSignalsPurged(n int64) {
	signalsPurgedTotal.Add(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
