package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider", "operation"},
	)
	AIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_errors_total",
			Help: "Non-2xx AI provider replies by HTTP status",
		},
		[]string{"provider", "status"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Total tokens consumed by provider",
		},
		[]string{"provider"},
	)

	// Explanation pipeline outcomes
	ExplanationsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explanations_generated_total",
			Help: "Explanations generated, by whether the match document was updated",
		},
		[]string{"persisted"},
	)
	ExplanationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explanation_errors_total",
			Help: "Failed explanation stages by error code",
		},
		[]string{"stage", "code"},
	)
	ExplanationParseOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explanation_parse_outcomes_total",
			Help: "How model replies were interpreted",
		},
		[]string{"outcome"},
	)
	ExplanationTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "explanation_tokens",
			Help:    "Tokens used per generated explanation",
			Buckets: []float64{100, 250, 500, 750, 1000, 1500, 2000, 3000},
		},
	)
	ExplanationDataQualityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "explanation_data_quality_score",
			Help:    "Distribution of data quality scores ([0,100]) of generated explanations",
			Buckets: []float64{40, 50, 60, 70, 80, 90, 100},
		},
	)
	MonitorPublishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_publish_failures_total",
			Help: "Monitoring events that could not be delivered to a sink",
		},
		[]string{"sink"},
	)
)

var initOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to
// call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(AIRequestsTotal)
		prometheus.MustRegister(AIRequestDuration)
		prometheus.MustRegister(AIErrorsTotal)
		prometheus.MustRegister(AITokensTotal)
		prometheus.MustRegister(ExplanationsGeneratedTotal)
		prometheus.MustRegister(ExplanationErrorsTotal)
		prometheus.MustRegister(ExplanationParseOutcomesTotal)
		prometheus.MustRegister(ExplanationTokens)
		prometheus.MustRegister(ExplanationDataQualityScore)
		prometheus.MustRegister(MonitorPublishFailuresTotal)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveExplanation records a successful generation.
func ObserveExplanation(persisted bool, parseOutcome string, tokens, dataQualityScore int) {
	ExplanationsGeneratedTotal.WithLabelValues(strconv.FormatBool(persisted)).Inc()
	if parseOutcome != "" {
		ExplanationParseOutcomesTotal.WithLabelValues(parseOutcome).Inc()
	}
	if tokens > 0 {
		ExplanationTokens.Observe(float64(tokens))
	}
	if dataQualityScore >= 0 && dataQualityScore <= 100 {
		ExplanationDataQualityScore.Observe(float64(dataQualityScore))
	}
}

// ObserveExplanationError records a failed stage.
func ObserveExplanationError(stage, code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	ExplanationErrorsTotal.WithLabelValues(stage, code).Inc()
}

// ObservePublishFailure records an undeliverable monitoring event.
func ObservePublishFailure(sink string) {
	MonitorPublishFailuresTotal.WithLabelValues(sink).Inc()
}
