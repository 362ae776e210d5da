package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/queue"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

// WebhookHandler accepts gateway callbacks and hands them to the settlement queue.
// It always acknowledges so the gateway does not retry against a broken endpoint;
// rejected callbacks are logged and dropped.
type WebhookHandler struct {
	secret []byte
	events queue.Queue
	now    func() time.Time
}

func NewWebhookHandler(secret string, events queue.Queue) *WebhookHandler {
	return &WebhookHandler{secret: []byte(secret), events: events, now: time.Now}
}

// Sign returns the signature the handler expects for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) verify(body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Receive handles POST /payment-events.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer writeJSON(w, http.StatusOK, map[string]bool{"received": true})

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.WarnContext(ctx, "Payment event body unreadable", "error", err)
		return
	}
	if !h.verify(body, r.Header.Get(SignatureHeader)) {
		logger.WarnContext(ctx, "Payment event rejected: bad signature", "remote", clientID(r))
		return
	}

	var event domain.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.WarnContext(ctx, "Payment event rejected: malformed body", "error", err)
		return
	}
	if event.IntentID == "" || (event.Type != domain.PaymentEventSucceeded && event.Type != domain.PaymentEventFailed) {
		logger.WarnContext(ctx, "Payment event rejected: unsupported", "type", event.Type, "intent_id", event.IntentID)
		return
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = h.now().UTC()
	}

	if err := h.events.PublishJSON(ctx, string(event.Type), event); err != nil {
		logger.ErrorContext(ctx, "Failed to queue payment event", "intent_id", event.IntentID, "error", err)
		return
	}
	logger.InfoContext(ctx, "Payment event queued", "type", event.Type, "intent_id", event.IntentID)
}
