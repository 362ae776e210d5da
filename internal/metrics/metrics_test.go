package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.BookingOutcome("ok")
	m.BookingOutcome("ok")
	m.SettlementOutcome("payment_succeeded", "duplicate")
	m.PayoutStatus("completed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("payment_succeeded", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payouts.WithLabelValues("completed")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	h := m.Middleware("bookings")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/bookings", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("bookings", http.MethodPost, "Conflict")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "spotbook_http_requests_total"))
}
