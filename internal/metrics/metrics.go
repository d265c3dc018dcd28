// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shop_orders"

type SweeperMetrics struct {
	ExpiredTotal  prometheus.Counter
	ErrorsTotal   prometheus.Counter
	SweepDuration prometheus.Histogram
	OverdueGauge  prometheus.Gauge
	CartsDeleted  prometheus.Counter
}

func NewSweeperMetrics(reg prometheus.Registerer) *SweeperMetrics {
	f := promauto.With(reg)
	return &SweeperMetrics{
		ExpiredTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "reservations_expired_total",
			Help:      "Reservations flipped to EXPIRED by the sweeper.",
		}),
		ErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "errors_total",
			Help:      "Sweep passes that ended in an error.",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time per sweep pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		OverdueGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "overdue_reservations",
			Help:      "Overdue ACTIVE reservations observed at last sweep.",
		}),
		CartsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "anonymous_carts_deleted_total",
			Help:      "Stale anonymous carts removed.",
		}),
	}
}

type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "method", "status"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route", "method"}),
	}
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
