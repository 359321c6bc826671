package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	acmeRegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acme_challenge_registrations_total",
		Help: "Challenge registrations by outcome.",
	}, []string{"outcome"})

	acmeRetirementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acme_challenge_retirements_total",
		Help: "Challenge retirements by whether a live challenge was found.",
	}, []string{"found"})

	acmeLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acme_challenge_lookups_total",
		Help: "Challenge lookups by result (hit or miss).",
	}, []string{"result"})

	acmeSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acme_challenge_reaper_sweeps_total",
		Help: "Expiry reaper sweeps completed.",
	})

	acmeSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acme_challenge_reaper_removed_total",
		Help: "Expired challenges removed by the reaper.",
	})

	acmeLastSweep = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "acme_challenge_reaper_last_sweep_timestamp_seconds",
		Help: "Unix time of the last completed reaper sweep.",
	})

	acmeLiveChallenges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "acme_challenge_live",
		Help: "Challenges currently servable.",
	})

	acmeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acme_responder_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	acmeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acme_responder_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusRecorder records challenge lifecycle events as Prometheus metrics.
// It satisfies service.MetricsRecorder.
type PrometheusRecorder struct{}

func (PrometheusRecorder) RecordRegistration(outcome string) {
	acmeRegistrationsTotal.WithLabelValues(outcome).Inc()
}

func (PrometheusRecorder) RecordRetirement(found bool) {
	acmeRetirementsTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
}

func (PrometheusRecorder) RecordLookup(hit bool) {
	if hit {
		acmeLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		acmeLookupsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordSweep records a completed reaper sweep. Its signature matches
// reaper.MetricsRecordFunc.
func RecordSweep(removed int, at time.Time) {
	acmeSweepsTotal.Inc()
	acmeSweptTotal.Add(float64(removed))
	acmeLastSweep.Set(float64(at.Unix()))
}

// SetLiveChallenges sets the live challenge gauge.
func SetLiveChallenges(n int) {
	acmeLiveChallenges.Set(float64(n))
}

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
// Routes are labelled by pattern so verification paths never become label values.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		acmeRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		acmeRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
