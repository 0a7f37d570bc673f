// Package telemetry holds the Prometheus metrics exported by the bot.
package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversation handling results.
const (
	ResultMatched     = "matched"
	ResultUnmatched   = "unmatched"
	ResultConfigError = "config_error"
	ResultError       = "error"
)

// Rule engine metrics
var (
	ConversationsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_conversations_handled_total",
			Help: "Conversations dispatched through the rule engine",
		},
		[]string{"subreddit", "state", "result"},
	)

	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_actions_executed_total",
			Help: "Rule actions executed against modmail conversations",
		},
		[]string{"subreddit", "action"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modmail_dispatch_duration_seconds",
			Help:    "Time to fetch rules, match and act on one conversation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	StreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modmail_streams_active",
		Help: "Number of subreddit and mailbox state streams being watched",
	})
)

// Reddit API metrics
var (
	RedditRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_reddit_requests_total",
			Help: "Requests sent to the Reddit API",
		},
		[]string{"endpoint", "method", "status"},
	)

	RedditRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modmail_reddit_request_duration_seconds",
			Help:    "Reddit API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RedditRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_reddit_retries_total",
			Help: "Reddit API requests retried after a transient failure",
		},
		[]string{"endpoint"},
	)
)

// HTTP server metrics
var (
	httpReqs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_http_requests_total",
			Help: "Total HTTP requests to the metrics server",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modmail_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// Middleware records request counts and latency by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		// chi fills the route pattern while routing, so read it afterwards
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
