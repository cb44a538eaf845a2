package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emoji_stories",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emoji_stories",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	StoriesSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emoji_stories",
			Subsystem: "stories",
			Name:      "submitted_total",
			Help:      "Stories accepted.",
		},
	)

	CommentsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emoji_stories",
			Subsystem: "comments",
			Name:      "added_total",
			Help:      "Comments accepted.",
		},
	)

	// ModerationResults is labelled by outcome: passed, flagged, unavailable.
	ModerationResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emoji_stories",
			Subsystem: "moderation",
			Name:      "results_total",
			Help:      "Moderation checks by outcome.",
		},
		[]string{"outcome"},
	)

	// LikesToggled is labelled by target (story, comment) and direction (like, unlike).
	LikesToggled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emoji_stories",
			Subsystem: "likes",
			Name:      "toggled_total",
			Help:      "Like toggles.",
		},
		[]string{"target", "direction"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		StoriesSubmitted,
		CommentsAdded,
		ModerationResults,
		LikesToggled,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations per route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
