package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.VoucherGenerated()
	m.VoucherGenerated()
	m.VoucherActivation("success")
	m.VoucherExpired(3)
	m.VoucherExpired(0)
	m.PointsCredited(9)
	m.RewardRedeemed(100)
	m.Notification("activation", "failed")
	m.JobRun("sweep", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VouchersGenerated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VoucherActivations.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.VouchersExpired))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.PointsAccrued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewardsRedeemed.WithLabelValues("100")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("activation", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("sweep", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.VoucherGenerated()
		m.VoucherActivation("success")
		m.WindowGranted("voucher")
		m.PaymentSettled("completed")
		m.RecordHTTPRequest("GET", "/plans", 200, time.Millisecond)
	})
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordHTTPRequest("GET", "/plans", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hotspot_http_requests_total{method="GET",path="/plans",status="200"} 1`)
}
