package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/projectbarber/barber/libs/httpx"
	"github.com/projectbarber/barber/services/booking-service/internal/payments"
)

const webhookTokenHeader = "X-Webhook-Token"

type webhookRequest struct {
	PaymentID     string `json:"paymentId"`
	ExternalID    string `json:"externalId"`
	Provider      string `json:"provider"`
	EventType     string `json:"eventType"`
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	if expected := h.cfg.WebhookToken; expected != "" {
		got := r.Header.Get(webhookTokenHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
			httpx.WriteError(w, http.StatusUnauthorized, "Invalid webhook token")
			return
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrInvalidJSON.Error())
		return
	}
	var req webhookRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrInvalidJSON.Error())
			return
		}
	}
	status := req.PaymentStatus
	if strings.TrimSpace(status) == "" {
		status = req.Status
	}

	res, err := h.cfg.Payments.ReconcileWebhook(r.Context(), payments.Notification{
		PaymentID:  req.PaymentID,
		ExternalID: req.ExternalID,
		Provider:   req.Provider,
		EventType:  req.EventType,
		Status:     status,
		Payload:    body,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "payment": res.Payment})
}

// stripeWebhook accepts Stripe-signed events; the signature is the only auth.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.cfg.StripeSecret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	n, err := payments.ParseStripeEvent(body, sig, h.cfg.StripeSecret, h.cfg.StripeTolerance)
	if errors.Is(err, payments.ErrUnsupportedEvent) {
		h.logger.InfoContext(r.Context(), "stripe event ignored", "event_type", n.EventType)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "stripe event rejected", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	res, err := h.cfg.Payments.ReconcileWebhook(r.Context(), n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "payment": res.Payment})
}
