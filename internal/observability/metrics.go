package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fletar/fletar-backend/internal/pkg/envutil"
	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

var (
	apiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletar_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)
	apiLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fletar_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
	apiInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fletar_http_requests_inflight",
			Help: "HTTP requests currently being served.",
		},
	)
	notificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletar_notification_deliveries_total",
			Help: "Notification delivery attempts by channel and outcome.",
		},
		[]string{"channel", "status"},
	)
	notificationDeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fletar_notification_delivery_duration_seconds",
			Help:    "Duration of a single delivery attempt.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)
	matchingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fletar_matching_duration_seconds",
			Help:    "Matching engine latency by direction.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"direction"},
	)
	matchingCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fletar_matching_candidates",
			Help:    "Candidates returned by the bounding-box prefetch.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"direction"},
	)
	submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletar_submissions_total",
			Help: "Write operations by kind and outcome.",
		},
		[]string{"kind", "status"},
	)
	slowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletar_db_slow_queries_total",
			Help: "Queries slower than the configured threshold, by operation.",
		},
		[]string{"operation"},
	)
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func ObserveAPI(method, route, status string, dur time.Duration) {
	apiRequests.WithLabelValues(method, route, status).Inc()
	apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func APIInflightInc() { apiInflight.Inc() }
func APIInflightDec() { apiInflight.Dec() }

func ObserveDelivery(channel, status string, dur time.Duration) {
	notificationDeliveries.WithLabelValues(channel, status).Inc()
	notificationDeliveryLatency.WithLabelValues(channel).Observe(dur.Seconds())
}

func ObserveMatching(direction string, candidates int, dur time.Duration) {
	matchingLatency.WithLabelValues(direction).Observe(dur.Seconds())
	matchingCandidates.WithLabelValues(direction).Observe(float64(candidates))
}

func IncSubmission(kind, status string) {
	submissions.WithLabelValues(kind, status).Inc()
}

func IncSlowQuery(operation string) {
	slowQueries.WithLabelValues(operation).Inc()
}

// StatusClass collapses an HTTP status into its family label.
func StatusClass(code int) string {
	if code <= 0 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// StartServer serves /metrics on addr until ctx is cancelled.
func StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", "error", err)
		}
	}()
}
