package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/webhook"
	"github.com/go-chi/chi/v5"
)

type Reconciler interface {
	Reconcile(ctx context.Context, n webhook.Notification) (webhook.Outcome, error)
}

// PaymentWebhookHandler answers the gateway with strictly coded statuses:
// 200 for anything handled or deliberately ignored, 4xx for requests that
// will never succeed as sent, 500 when a retry may help.
type PaymentWebhookHandler struct {
	Auth       webhook.Authenticator
	Reconciler Reconciler
	Events     webhook.EventLog // optional
	Log        *slog.Logger
}

func (h *PaymentWebhookHandler) Register(r chi.Router) {
	r.Post("/api/payments/webhook", h.handle)
}

func (h *PaymentWebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		h.finish(w, webhook.OutcomeInvalid, http.StatusBadRequest, "unreadable body")
		return
	}
	h.Log.Info("payment webhook received", "bytes", len(body))

	if err := h.Auth.Authenticate(r.Header, body); err != nil {
		h.Log.Warn("payment webhook rejected", "remote", r.RemoteAddr)
		h.finish(w, webhook.OutcomeUnauthorized, http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.Log.Info("payment webhook authenticated")

	n, err := webhook.ParseNotification(body)
	if err != nil {
		h.Log.Warn("payment webhook payload malformed", "err", err)
		h.record(r.Context(), webhook.Delivery{Outcome: webhook.OutcomeInvalid, Error: apperr.Message(err), Payload: body})
		h.finish(w, webhook.OutcomeInvalid, http.StatusBadRequest, "malformed payload")
		return
	}

	outcome, err := h.Reconciler.Reconcile(r.Context(), n)
	d := webhook.Delivery{
		EventType: n.EventType,
		RequestID: n.RequestID,
		Status:    n.Status,
		Outcome:   outcome,
		Payload:   body,
	}
	if err != nil {
		d.Error = err.Error()
		h.record(r.Context(), d)
		code := apperr.HTTPStatus(err)
		msg := apperr.Message(err)
		if code >= http.StatusInternalServerError {
			msg = "Internal server error"
		}
		h.finish(w, outcome, code, msg)
		return
	}
	h.record(r.Context(), d)
	metrics.WebhookOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *PaymentWebhookHandler) finish(w http.ResponseWriter, outcome webhook.Outcome, code int, msg string) {
	metrics.WebhookOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	writeJSON(w, code, map[string]string{"error": msg})
}

// record never affects the response.
func (h *PaymentWebhookHandler) record(ctx context.Context, d webhook.Delivery) {
	if h.Events == nil {
		return
	}
	if err := h.Events.Record(ctx, d); err != nil {
		h.Log.Warn("webhook delivery log failed", "err", err)
	}
}
