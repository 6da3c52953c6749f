// Package metrics exposes the billing counters to Prometheus.
//
// All recording methods are safe to call on a nil *Metrics, so components can run without
// a registry in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	VouchersGenerated  prometheus.Counter
	VoucherActivations *prometheus.CounterVec
	VouchersExpired    prometheus.Counter

	WindowsOpened *prometheus.CounterVec
	WindowsClosed prometheus.Counter

	PointsAccrued      prometheus.Counter
	RewardsRedeemed    *prometheus.CounterVec
	PaymentsSettled    *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec

	JobRunsTotal *prometheus.CounterVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotspot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		VouchersGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotspot_vouchers_generated_total",
			Help: "Vouchers written to the ledger",
		}),
		VoucherActivations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_voucher_activations_total",
				Help: "Voucher activation attempts by result",
			},
			[]string{"result"},
		),
		VouchersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotspot_vouchers_expired_total",
			Help: "Vouchers moved to the expired state by the sweep",
		}),
		WindowsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_access_grants_total",
				Help: "Time granted to access windows by source",
			},
			[]string{"source"},
		),
		WindowsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotspot_access_windows_closed_total",
			Help: "Access windows deactivated after their end",
		}),
		PointsAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotspot_loyalty_points_accrued_total",
			Help: "Loyalty points credited from payments",
		}),
		RewardsRedeemed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_loyalty_rewards_redeemed_total",
				Help: "Loyalty rewards redeemed by tier",
			},
			[]string{"tier"},
		),
		PaymentsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_payments_settled_total",
				Help: "Payments moved out of pending by final status",
			},
			[]string{"status"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_notifications_total",
				Help: "SMS notifications by type and delivery status",
			},
			[]string{"type", "status"},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotspot_job_runs_total",
				Help: "Scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.VouchersGenerated,
		m.VoucherActivations,
		m.VouchersExpired,
		m.WindowsOpened,
		m.WindowsClosed,
		m.PointsAccrued,
		m.RewardsRedeemed,
		m.PaymentsSettled,
		m.NotificationsTotal,
		m.JobRunsTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) VoucherGenerated() {
	if m == nil {
		return
	}
	m.VouchersGenerated.Inc()
}

func (m *Metrics) VoucherActivation(result string) {
	if m == nil {
		return
	}
	m.VoucherActivations.WithLabelValues(result).Inc()
}

func (m *Metrics) VoucherExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.VouchersExpired.Add(float64(n))
}

func (m *Metrics) WindowGranted(source string) {
	if m == nil {
		return
	}
	m.WindowsOpened.WithLabelValues(source).Inc()
}

func (m *Metrics) WindowClosed() {
	if m == nil {
		return
	}
	m.WindowsClosed.Inc()
}

func (m *Metrics) PointsCredited(points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.PointsAccrued.Add(float64(points))
}

func (m *Metrics) RewardRedeemed(tier int64) {
	if m == nil {
		return
	}
	m.RewardsRedeemed.WithLabelValues(strconv.FormatInt(tier, 10)).Inc()
}

func (m *Metrics) PaymentSettled(status string) {
	if m == nil {
		return
	}
	m.PaymentsSettled.WithLabelValues(status).Inc()
}

func (m *Metrics) Notification(kind, status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.JobRunsTotal.WithLabelValues(job, result).Inc()
}
