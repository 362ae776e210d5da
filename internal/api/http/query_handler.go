package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"spotbook-backend/internal/service"
)

type PayoutHandler struct {
	payouts service.PayoutService
}

func NewPayoutHandler(payouts service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// List handles GET /payouts/{ownerId}.
func (h *PayoutHandler) List(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.payouts.ListPayouts(r.Context(), mux.Vars(r)["ownerId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payouts)
}

type AvailabilityHandler struct {
	oracle service.AvailabilityService
	now    func() time.Time
}

func NewAvailabilityHandler(oracle service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{oracle: oracle, now: time.Now}
}

// Check handles GET /spots/{spotId}/availability?at=RFC3339. at defaults to now.
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	spotID := mux.Vars(r)["spotId"]
	at := h.now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", "at must be an RFC3339 timestamp")
			return
		}
		at = parsed.UTC()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"spotId": spotID,
		"at":     at,
		"free":   h.oracle.IsFree(r.Context(), spotID, at),
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
