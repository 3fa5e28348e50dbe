package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// OrderLookup is the read the payment-success page needs.
type OrderLookup interface {
	FindByCorrelationID(ctx context.Context, requestID string) (*orders.Order, error)
}

type OrdersHandler struct {
	Store   OrderLookup
	Redis   redis.Cmdable // optional
	Timeout time.Duration
	Log     *slog.Logger
}

type orderStatusResp struct {
	RequestID     string               `json:"requestId"`
	PaymentStatus orders.PaymentStatus `json:"paymentStatus"`
	Status        orders.Status        `json:"status"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/api/orders/{requestId}", h.getOrder)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	if requestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	// 1) cache, only ever holding terminal states
	key := fmt.Sprintf(redisx.KeyOrderStatus, requestID)
	if h.Redis != nil {
		if s, ok, err := redisx.GetString(ctx, h.Redis, key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	// 2) store
	o, err := h.Store.FindByCorrelationID(ctx, requestID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		if !errors.Is(err, orders.ErrDuplicateCorrelation) {
			h.Log.Error("order status lookup failed", "request_id", requestID, "err", err)
		}
		writeError(w, err)
		return
	}

	b, _ := json.Marshal(orderStatusResp{
		RequestID:     o.RequestID,
		PaymentStatus: o.PaymentStatus,
		Status:        o.Status,
		Amount:        o.Amount,
		Currency:      o.Currency,
	})
	if h.Redis != nil && o.PaymentStatus.Terminal() {
		if err := h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
			h.Log.Warn("order status cache write failed", "err", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
