package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"spotbook-backend/internal/metrics"
)

// Handlers is everything the router serves.
type Handlers struct {
	Bookings     *BookingHandler
	Payouts      *PayoutHandler
	Webhook      *WebhookHandler
	Availability *AvailabilityHandler
	Metrics      *metrics.Metrics
	// Limiter throttles booking submissions. Nil disables throttling.
	Limiter *RateLimiter
}

// RegisterRoutes mounts the public API on router.
func RegisterRoutes(router *mux.Router, h Handlers) {
	route := func(name string, f http.HandlerFunc) http.Handler {
		if h.Metrics == nil {
			return f
		}
		return h.Metrics.Middleware(name)(f)
	}

	create := route("create_booking", h.Bookings.Create)
	if h.Limiter != nil {
		create = h.Limiter.Middleware(create)
	}
	router.Handle("/bookings", create).Methods("POST")
	router.Handle("/bookings/{id}", route("get_booking", h.Bookings.Get)).Methods("GET")
	router.Handle("/bookings/{id}/cancel", route("cancel_booking", h.Bookings.Cancel)).Methods("POST")
	router.Handle("/payouts/{ownerId}", route("list_payouts", h.Payouts.List)).Methods("GET")
	router.Handle("/spots/{spotId}/availability", route("availability", h.Availability.Check)).Methods("GET")
	router.Handle("/payment-events", route("payment_events", h.Webhook.Receive)).Methods("POST")

	router.HandleFunc("/healthz", healthz).Methods("GET")
	if h.Metrics != nil {
		router.Handle("/metrics", h.Metrics.Handler()).Methods("GET")
	}
}
