package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "spotbook-backend/internal/api/http"
	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/gateway"
	"spotbook-backend/internal/lock"
	"spotbook-backend/internal/metrics"
	"spotbook-backend/internal/queue"
	"spotbook-backend/internal/repository/memory"
	"spotbook-backend/internal/service"
)

const webhookSecret = "0123456789abcdef"

type testServer struct {
	router  *mux.Router
	store   *memory.Store
	sandbox *gateway.Sandbox
	events  *queue.Memory
	spotID  string
	ownerID string
}

func newTestServer(t *testing.T, limiter *api.RateLimiter) *testServer {
	t.Helper()
	store := memory.NewStore()
	sandbox := gateway.NewSandbox()
	events := queue.NewMemory(queue.Options{})
	repos := store.Repositories()
	m := metrics.New()

	ts := &testServer{store: store, sandbox: sandbox, events: events, spotID: uuid.NewString(), ownerID: uuid.NewString()}
	dest := "recp_owner"
	store.PutOwner(domain.Owner{ID: ts.ownerID, Name: "Owner", PayoutDestinationID: &dest})
	store.PutSpot(domain.Spot{ID: ts.spotID, Name: "Bay 1", HourlyPrice: decimal.RequireFromString("5.00"), OwnerID: &ts.ownerID, Available: true})

	oracle := service.NewAvailabilityService(repos.Reservations, nil)
	bookings := service.NewBookingService(repos, oracle, sandbox, lock.NewKeyed(), m, service.BookingPolicy{
		WindowDuration: 2 * time.Hour,
		HoldTTL:        15 * time.Minute,
		Currency:       "usd",
		MinimumAmount:  decimal.RequireFromString("1.00"),
		CaptureTimeout: time.Second,
	}, nil)

	ts.router = mux.NewRouter()
	api.RegisterRoutes(ts.router, api.Handlers{
		Bookings:     api.NewBookingHandler(bookings),
		Payouts:      api.NewPayoutHandler(service.NewPayoutService(repos.Payouts)),
		Webhook:      api.NewWebhookHandler(webhookSecret, events),
		Availability: api.NewAvailabilityHandler(oracle),
		Metrics:      m,
		Limiter:      limiter,
	})
	return ts
}

func (ts *testServer) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) bookingBody(requester, payment string, start time.Time) []byte {
	body, _ := json.Marshal(map[string]any{
		"spotId":      ts.spotID,
		"requesterId": requester,
		"windowStart": start.Format(time.RFC3339),
		"payment":     json.RawMessage(payment),
	})
	return body
}

type bookingResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Payment *struct {
		IntentID     string `json:"intentId"`
		ClientSecret string `json:"clientSecret"`
	} `json:"payment"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) bookingResponse {
	t.Helper()
	var resp bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func tomorrow() time.Time {
	return time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
}

func TestCreateBooking(t *testing.T) {
	ts := newTestServer(t, nil)
	start := tomorrow()

	rec := ts.do("POST", "/bookings", ts.bookingBody("alice", `{"type":"card","token":"tok_visa"}`, start), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, "pending", resp.Status)
	require.NotNil(t, resp.Payment)
	assert.NotEmpty(t, resp.Payment.IntentID)

	rec = ts.do("POST", "/bookings", ts.bookingBody("bob", `{"type":"cash"}`, start.Add(time.Hour)), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp = decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RESOURCE_OCCUPIED", resp.Error.Code)
}

func TestCreateBooking_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name     string
		body     []byte
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed json",
			body:     []byte("{"),
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_REQUEST",
		},
		{
			name:     "past window",
			body:     ts.bookingBody("alice", `{"type":"cash"}`, time.Now().Add(-time.Hour)),
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_WINDOW",
		},
		{
			name:     "bad card",
			body:     ts.bookingBody("alice", `{"type":"card","number":"123"}`, tomorrow()),
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_PAYMENT_METHOD",
		},
		{
			name:     "unknown spot",
			body:     []byte(`{"spotId":"` + uuid.NewString() + `","requesterId":"alice","windowStart":"` + tomorrow().Format(time.RFC3339) + `","payment":{"type":"cash"}}`),
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do("POST", "/bookings", tt.body, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
		})
	}
}

func TestCreateBooking_DeclineReturnsCancelledReservation(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/bookings", ts.bookingBody("alice", `{"type":"card","token":"`+gateway.DeclineToken+`"}`, tomorrow()), nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "cancelled", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PAYMENT_FAILED", resp.Error.Code)
}

func TestCreateBooking_IdempotencyKey(t *testing.T) {
	ts := newTestServer(t, nil)
	body := ts.bookingBody("alice", `{"type":"cash"}`, tomorrow())
	headers := map[string]string{api.IdempotencyHeader: "req-1"}

	first := ts.do("POST", "/bookings", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := ts.do("POST", "/bookings", body, headers)
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, decode(t, first).ID, decode(t, second).ID)
}

func TestGetAndCancelBooking(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do("POST", "/bookings", ts.bookingBody("alice", `{"type":"cash"}`, tomorrow()), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec).ID

	rec = ts.do("GET", "/bookings/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decode(t, rec).Status)

	rec = ts.do("POST", "/bookings/"+id+"/cancel", []byte(`{"requesterId":"mallory"}`), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do("POST", "/bookings/"+id+"/cancel", []byte(`{"requesterId":"alice"}`), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode(t, rec).Status)

	rec = ts.do("GET", "/bookings/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailability(t *testing.T) {
	ts := newTestServer(t, nil)
	start := tomorrow()
	rec := ts.do("POST", "/bookings", ts.bookingBody("alice", `{"type":"cash"}`, start), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	check := func(at time.Time) bool {
		rec := ts.do("GET", "/spots/"+ts.spotID+"/availability?at="+at.Format(time.RFC3339), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Free bool `json:"free"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp.Free
	}
	assert.False(t, check(start.Add(time.Hour)))
	assert.True(t, check(start.Add(2*time.Hour)))

	rec = ts.do("GET", "/spots/"+ts.spotID+"/availability?at=tomorrow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPayouts(t *testing.T) {
	ts := newTestServer(t, nil)
	_, _, err := ts.store.CreateIfAbsent(context.Background(), &domain.Payout{
		ID:          uuid.NewString(),
		PaymentRef:  "pi_1",
		OwnerID:     ts.ownerID,
		TotalAmount: decimal.RequireFromString("5.00"),
		PlatformFee: decimal.RequireFromString("0.50"),
		OwnerAmount: decimal.RequireFromString("4.50"),
		Currency:    "usd",
		Status:      domain.PayoutStatusPending,
		CreatedOn:   time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := ts.do("GET", "/payouts/"+ts.ownerID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "pi_1", resp[0]["paymentRef"])
	assert.Equal(t, "5", resp[0]["totalAmount"])
	assert.Equal(t, "0.5", resp[0]["platformFee"])
	assert.Equal(t, "4.5", resp[0]["ownerAmount"])
	assert.NotContains(t, resp[0], "total_amount")

	rec = ts.do("GET", "/payouts/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPaymentEvents(t *testing.T) {
	event := []byte(`{"id":"evt_1","type":"payment_succeeded","intentId":"pi_1","amount":"5.00","currency":"usd","metadata":{"spotId":"s"}}`)

	tests := []struct {
		name       string
		body       []byte
		signature  string
		wantQueued int
	}{
		{name: "valid", body: event, signature: api.Sign([]byte(webhookSecret), event), wantQueued: 1},
		{name: "bad signature", body: event, signature: api.Sign([]byte("wrong-secret-value"), event), wantQueued: 0},
		{name: "missing signature", body: event, wantQueued: 0},
		{
			name:       "unsupported type",
			body:       []byte(`{"type":"refund","intentId":"pi_1"}`),
			signature:  api.Sign([]byte(webhookSecret), []byte(`{"type":"refund","intentId":"pi_1"}`)),
			wantQueued: 0,
		},
		{name: "malformed", body: []byte("{"), signature: api.Sign([]byte(webhookSecret), []byte("{")), wantQueued: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			rec := ts.do("POST", "/payment-events", tt.body, map[string]string{api.SignatureHeader: tt.signature})
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"received":true}`, rec.Body.String())
			assert.Equal(t, tt.wantQueued, ts.events.Pending())
		})
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, api.NewRateLimiter(0.001, 1))
	body := ts.bookingBody("alice", `{"type":"cash"}`, tomorrow())

	first := ts.do("POST", "/bookings", body, nil)
	assert.Equal(t, http.StatusCreated, first.Code)
	second := ts.do("POST", "/bookings", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Reads are not throttled.
	rec := ts.do("GET", "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do("GET", "/healthz", nil, nil)
	ts.do("POST", "/bookings", ts.bookingBody("alice", `{"type":"cash"}`, tomorrow()), nil)

	rec := ts.do("GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spotbook_bookings_total")
	assert.Contains(t, rec.Body.String(), `route="create_booking"`)
}
