package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the send driver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	messagesSentTotal     prometheus.Counter
	messagesFailedTotal   *prometheus.CounterVec
	sendDuration          prometheus.Histogram
	appliedDelaySeconds   prometheus.Histogram
	sessionsFinishedTotal *prometheus.CounterVec
	persistFailuresTotal  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "whatsapp_sender",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "whatsapp_sender",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		messagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "whatsapp_sender",
				Name:      "messages_sent_total",
				Help:      "Total number of messages delivered successfully.",
			},
		),
		messagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "whatsapp_sender",
				Name:      "messages_failed_total",
				Help:      "Total number of per-contact send failures grouped by failure category.",
			},
			[]string{"category"},
		),
		sendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "whatsapp_sender",
				Name:      "send_duration_seconds",
				Help:      "Messenger send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		appliedDelaySeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "whatsapp_sender",
				Name:      "applied_delay_seconds",
				Help:      "Inter-message delay applied by the pacing policy, in seconds.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		sessionsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "whatsapp_sender",
				Name:      "sessions_finished_total",
				Help:      "Total number of bulk send sessions reaching a terminal status.",
			},
			[]string{"status"},
		),
		persistFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "whatsapp_sender",
				Name:      "session_persist_failures_total",
				Help:      "Total number of session snapshot writes that failed.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.messagesSentTotal,
		m.messagesFailedTotal,
		m.sendDuration,
		m.appliedDelaySeconds,
		m.sessionsFinishedTotal,
		m.persistFailuresTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncMessageSent() {
	if m == nil {
		return
	}
	m.messagesSentTotal.Inc()
}

func (m *Metrics) IncMessageFailed(category string) {
	if m == nil {
		return
	}
	categoryLabel := strings.TrimSpace(strings.ToLower(category))
	if categoryLabel == "" {
		categoryLabel = "unknown"
	}
	m.messagesFailedTotal.WithLabelValues(categoryLabel).Inc()
}

func (m *Metrics) ObserveSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.Observe(seconds)
}

func (m *Metrics) ObserveAppliedDelay(seconds int) {
	if m == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	m.appliedDelaySeconds.Observe(float64(seconds))
}

func (m *Metrics) IncSessionFinished(status string) {
	if m == nil {
		return
	}
	statusLabel := strings.TrimSpace(strings.ToLower(status))
	if statusLabel == "" {
		statusLabel = "unknown"
	}
	m.sessionsFinishedTotal.WithLabelValues(statusLabel).Inc()
}

func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailuresTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
