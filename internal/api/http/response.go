package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/logger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusFor maps a booking error code to its HTTP status.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidWindow, domain.CodeInvalidPaymentMethod:
		return http.StatusBadRequest
	case domain.CodeResourceOccupied, domain.CodeWindowEnded:
		return http.StatusConflict
	case domain.CodePaymentPending:
		return http.StatusAccepted
	case domain.CodePaymentFailed:
		return http.StatusPaymentRequired
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": {...}}. Internal errors are logged and not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var be *domain.BookingError
	if errors.As(err, &be) {
		writeErrorCode(w, statusFor(be.Code), string(be.Code), be.Message)
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, string(domain.CodeNotFound), "not found")
		return
	}
	logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeErrorCode(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}
