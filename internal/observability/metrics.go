package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bmsbridge-launcher/internal/state"
)

var allStatuses = []state.ServerStatus{
	state.StatusStopped,
	state.StatusStarting,
	state.StatusRunning,
	state.StatusWarning,
	state.StatusError,
}

// MetricsManager manages Prometheus metrics
type MetricsManager struct {
	logger    *zap.SugaredLogger
	registry  *prometheus.Registry
	startTime time.Time

	// Launcher metrics
	uptime         prometheus.GaugeFunc
	serverStatus   *prometheus.GaugeVec
	processRunning prometheus.Gauge
	windowHidden   prometheus.Gauge
	processEvents  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	pollErrors     prometheus.Counter
	outputLines    prometheus.Counter

	// HTTP metrics for the status listener
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	mm := &MetricsManager{
		logger:    logger,
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	mm.initMetrics()
	mm.registerMetrics()
	mm.setStatus(state.StatusStopped)

	return mm
}

// initMetrics initializes all Prometheus metrics
func (mm *MetricsManager) initMetrics() {
	mm.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "bmsbridge_launcher_uptime_seconds",
		Help: "Time since the launcher started",
	}, func() float64 {
		return time.Since(mm.startTime).Seconds()
	})

	mm.serverStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bmsbridge_server_status",
			Help: "1 for the server status currently displayed, 0 otherwise",
		},
		[]string{"status"},
	)

	mm.processRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bmsbridge_server_process_running",
		Help: "Whether the launcher holds a live server process",
	})

	mm.windowHidden = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bmsbridge_launcher_window_hidden",
		Help: "Whether the launcher window is hidden to the tray",
	})

	mm.processEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmsbridge_server_process_events_total",
			Help: "Server process lifecycle events by type",
		},
		[]string{"event"},
	)

	mm.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmsbridge_server_status_transitions_total",
			Help: "Server status changes",
		},
		[]string{"from", "to"},
	)

	mm.pollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bmsbridge_health_poll_errors_total",
		Help: "Health polls that could not reach the server",
	})

	mm.outputLines = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bmsbridge_server_output_lines_total",
		Help: "Server log lines relayed to the launcher",
	})

	mm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmsbridge_launcher_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bmsbridge_launcher_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
}

// registerMetrics registers all metrics with the registry
func (mm *MetricsManager) registerMetrics() {
	mm.registry.MustRegister(
		mm.uptime,
		mm.serverStatus,
		mm.processRunning,
		mm.windowHidden,
		mm.processEvents,
		mm.transitions,
		mm.pollErrors,
		mm.outputLines,
		mm.httpRequests,
		mm.httpDuration,
	)

	// Also register Go runtime metrics
	mm.registry.MustRegister(collectors.NewGoCollector())
	mm.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler for the /metrics endpoint
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry for custom metrics
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

// Observe folds one state machine update into the metrics. It is meant to be
// subscribed to the machine.
func (mm *MetricsManager) Observe(u state.Update) {
	switch u.Event.Type {
	case state.EventProcessStarted, state.EventProcessExited, state.EventProcessStopped:
		mm.processEvents.WithLabelValues(string(u.Event.Type)).Inc()
	case state.EventPollError:
		mm.pollErrors.Inc()
	case state.EventOutput:
		mm.outputLines.Inc()
	}

	if t := u.Transition; t != nil {
		mm.transitions.WithLabelValues(string(t.From), string(t.To)).Inc()
	}

	mm.setStatus(u.Snapshot.Health.ServerStatus)
	mm.processRunning.Set(boolGauge(u.Snapshot.ProcessRunning))
	mm.windowHidden.Set(boolGauge(u.Snapshot.Hidden))
}

func (mm *MetricsManager) setStatus(current state.ServerStatus) {
	for _, s := range allStatuses {
		mm.serverStatus.WithLabelValues(string(s)).Set(boolGauge(s == current))
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RecordHTTPRequest records an HTTP request
func (mm *MetricsManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	mm.httpRequests.WithLabelValues(method, path, status).Inc()
	mm.httpDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// HTTPMiddleware returns middleware that records HTTP metrics
func (mm *MetricsManager) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap the response writer to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			mm.RecordHTTPRequest(r.Method, r.URL.Path, http.StatusText(ww.statusCode), time.Since(start))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
