package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	core "wabridge/gateway/service/core"
)

const maxWebhookBody = 1 * 1024 * 1024 // Meta webhook bodies are small

// WebhookHandler handles the Meta webhook endpoints.
type WebhookHandler struct {
	svc         *core.Service
	logger      *log.Logger
	verifyToken string
	ackDeadline time.Duration
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(s *core.Service, l *log.Logger, verifyToken string, ackDeadline time.Duration) *WebhookHandler {
	return &WebhookHandler{svc: s, logger: l, verifyToken: verifyToken, ackDeadline: ackDeadline}
}

// VerifyWebhook handles GET /whatsapp/v1 subscription verification. Meta sends
// hub.mode, hub.verify_token and hub.challenge; the endpoint echoes the
// challenge back when the token matches.
func (h *WebhookHandler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		h.respondError(w, "Missing hub.mode or hub.verify_token", http.StatusBadRequest)
		return
	}

	if mode != "subscribe" || token != h.verifyToken {
		h.logger.Printf("HTTP Handler: webhook verification rejected (mode=%q)", mode)
		h.respondError(w, "Verification token mismatch", http.StatusForbidden)
		return
	}

	h.logger.Println("HTTP Handler: webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, challenge); err != nil {
		h.logger.Printf("HTTP Handler: failed to write challenge: %v", err)
	}
}

// ReceiveWebhook handles POST /whatsapp/v1 event notifications. Meta retries
// deliveries that are not acknowledged quickly with a 200, so the endpoint
// always returns 200 within the ack deadline no matter what the pipeline
// decides. Processing outcomes are visible in metrics and logs, never in the
// response.
func (h *WebhookHandler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Printf("HTTP Handler: failed to read webhook body: %v", err)
		h.respondJSON(w, map[string]interface{}{"status": "ok"}, http.StatusOK)
		return
	}
	defer r.Body.Close()

	ctx, cancel := context.WithTimeout(r.Context(), h.ackDeadline)
	defer cancel()

	decision := h.svc.Accept(ctx, body)

	h.respondJSON(w, map[string]interface{}{
		"status": "ok",
		"result": string(decision),
	}, http.StatusOK)
}

// HealthCheck handles GET /health requests.
func (h *WebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"service":   "whatsapp-gateway",
	}

	h.respondJSON(w, resp, http.StatusOK)
}

// respondJSON sends JSON response
func (h *WebhookHandler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("HTTP Handler: failed to encode JSON response: %v", err)
	}
}

// respondError sends error response
func (h *WebhookHandler) respondError(w http.ResponseWriter, message string, statusCode int) {
	errorResp := map[string]interface{}{
		"error":   message,
		"status":  statusCode,
		"message": http.StatusText(statusCode),
	}

	h.respondJSON(w, errorResp, statusCode)
}
