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
			Name: "messaging_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_ws_frames_total",
			Help: "Total number of websocket frames by direction and type.",
		},
		[]string{"direction", "frame_type"},
	)
	fanoutResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_fanout_results_total",
			Help: "Per-connection fan-out outcomes.",
		},
		[]string{"result"},
	)
	droppedEphemeralTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_dropped_ephemeral_frames_total",
			Help: "Ephemeral frames dropped from full send queues.",
		},
	)
	slowConsumerEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_slow_consumer_evictions_total",
			Help: "Connections force-closed after the backpressure timeout.",
		},
	)
	presenceSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_presence_sweeps_total",
			Help: "Presence sweep passes executed.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsFramesTotal,
		fanoutResultsTotal,
		droppedEphemeralTotal,
		slowConsumerEvictions,
		presenceSweepsTotal,
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

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSFrame(direction, frameType string) {
	wsFramesTotal.WithLabelValues(direction, frameType).Inc()
}

func IncFanoutResult(result string) {
	fanoutResultsTotal.WithLabelValues(result).Inc()
}

func IncDroppedEphemeral() {
	droppedEphemeralTotal.Inc()
}

func IncSlowConsumerEviction() {
	slowConsumerEvictions.Inc()
}

func IncPresenceSweep() {
	presenceSweepsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
