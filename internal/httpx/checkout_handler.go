package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Initiator interface {
	Initiate(ctx context.Context, in payment.OrderIntent) (payment.InitiateResult, error)
}

type cartItem struct {
	ProductID     string          `json:"productId"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	SelectedSize  string          `json:"selectedSize"`
	SelectedColor *orders.Color   `json:"selectedColor"`
}

type initiateReq struct {
	TotalAmount    decimal.Decimal      `json:"totalAmount"`
	CurrencyCode   string               `json:"currencyCode"`
	Currency       string               `json:"currency"`
	Description    string               `json:"description"`
	Customer       orders.Customer      `json:"customer"`
	CustomerName   string               `json:"customerName"`
	CartItems      []cartItem           `json:"cartItems"`
	PaymentMethod  string               `json:"paymentMethod"`
	Phone          string               `json:"phone"`
	BankDetails    *payment.BankDetails `json:"bankDetails"`
	DiscountAmount decimal.Decimal      `json:"discountAmount"`
}

func (req initiateReq) intent(defaultCurrency string) payment.OrderIntent {
	currency := req.CurrencyCode
	if currency == "" {
		currency = req.Currency
	}
	if currency == "" {
		currency = defaultCurrency
	}
	phone := strings.TrimSpace(req.Phone)
	cust := req.Customer
	if cust.Name == "" {
		cust.Name = req.CustomerName
	}
	if cust.Phone == "" {
		cust.Phone = phone
	}
	items := make([]orders.LineItem, 0, len(req.CartItems))
	for _, it := range req.CartItems {
		li := orders.LineItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
			Size:      it.SelectedSize,
		}
		if it.SelectedColor != nil {
			li.Color = *it.SelectedColor
		}
		items = append(items, li)
	}
	return payment.OrderIntent{
		Amount:      req.TotalAmount,
		Currency:    strings.ToUpper(strings.TrimSpace(currency)),
		Description: req.Description,
		Customer:    cust,
		Items:       items,
		Channel:     orders.Channel(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Phone:       phone,
		Bank:        req.BankDetails,
		Discount:    req.DiscountAmount,
	}
}

type CheckoutHandler struct {
	Initiator       Initiator
	DefaultCurrency string
	Log             *slog.Logger
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/api/payments/initiate", h.initiate)
}

func (h *CheckoutHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	res, err := h.Initiator.Initiate(r.Context(), req.intent(h.DefaultCurrency))
	if err != nil {
		h.Log.Warn("payment initiation failed", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
