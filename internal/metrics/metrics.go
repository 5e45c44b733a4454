package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/bloodbank/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Auth metrics

	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "logins_total",
		Help:      "Login attempts, by outcome.",
	}, []string{"outcome"})

	RegistrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "registrations_total",
		Help:      "Registration attempts, by outcome.",
	}, []string{"outcome"})

	TokenRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "token_rejections_total",
		Help:      "Bearer tokens the access filter downgraded to anonymous, by reason.",
	}, []string{"reason"})

	AccessDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "access_denied_total",
		Help:      "Requests rejected by a role predicate, by policy and cause.",
	}, []string{"policy", "cause"})

	// Inventory metrics

	UnitsRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "inventory_removed_quantity_total",
		Help:      "Quantity taken out of inventory, by blood type.",
	}, []string{"blood_type"})

	SweepRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "sweep_runs_total",
		Help:      "Expiry sweep runs, by outcome.",
	}, []string{"outcome"})

	SweepExpiredUnits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "sweep_expired_units_total",
		Help:      "Units marked EXPIRED by the sweep.",
	})

	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bloodbank",
		Name:      "sweep_duration_seconds",
		Help:      "Time taken for one expiry sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bloodbank",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status", "role"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status", "role"})
)

func Register() {
	prometheus.MustRegister(
		LoginsTotal,
		RegistrationsTotal,
		TokenRejectionsTotal,
		AccessDeniedTotal,
		UnitsRemovedTotal,
		SweepRunsTotal,
		SweepExpiredUnits,
		SweepDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus liveness and readiness probes.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
