package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/gateway"
	"spotbook-backend/internal/service"
)

// IdempotencyHeader carries the client's request id for safe resubmission.
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

type BookingHandler struct {
	bookings service.BookingService
}

func NewBookingHandler(bookings service.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

type createBookingRequest struct {
	SpotID      string          `json:"spotId"`
	RequesterID string          `json:"requesterId"`
	RequestID   string          `json:"requestId"`
	WindowStart time.Time       `json:"windowStart"`
	Payment     json.RawMessage `json:"payment"`
}

type paymentView struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

type bookingResponse struct {
	*domain.Reservation
	Payment *paymentView `json:"payment,omitempty"`
}

func newBookingResponse(r *domain.Reservation, intent *gateway.Intent) bookingResponse {
	resp := bookingResponse{Reservation: r}
	if intent != nil {
		resp.Payment = &paymentView{IntentID: intent.IntentID, ClientSecret: intent.ClientSecret}
	}
	return resp
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON booking")
		return
	}
	if req.SpotID == "" || req.RequesterID == "" {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "spotId and requesterId are required")
		return
	}
	if key := r.Header.Get(IdempotencyHeader); key != "" {
		req.RequestID = key
	}

	result, err := h.bookings.CreateBooking(r.Context(), service.BookingRequest{
		SpotID:         req.SpotID,
		RequesterID:    req.RequesterID,
		RequestID:      req.RequestID,
		WindowStart:    req.WindowStart,
		PaymentDetails: req.Payment,
	})
	if err != nil {
		var be *domain.BookingError
		if errors.As(err, &be) && be.Reservation != nil {
			writeJSON(w, statusFor(be.Code), struct {
				bookingResponse
				Error errorDetail `json:"error"`
			}{
				bookingResponse: newBookingResponse(be.Reservation, nil),
				Error:           errorDetail{Code: string(be.Code), Message: be.Message},
			})
			return
		}
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, newBookingResponse(result.Reservation, result.Intent))
}

// Get handles GET /bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	reservation, err := h.bookings.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

type cancelBookingRequest struct {
	RequesterID string `json:"requesterId"`
}

// Cancel handles POST /bookings/{id}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.RequesterID == "" {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "requesterId is required")
		return
	}
	reservation, err := h.bookings.CancelBooking(r.Context(), mux.Vars(r)["id"], req.RequesterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}
