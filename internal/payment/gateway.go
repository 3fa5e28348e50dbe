package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/shopspring/decimal"
)

const createRequestPath = "/xp021/v1/request/create"

// ErrTokenRejected marks a create call the gateway refused with HTTP 401.
var ErrTokenRejected = errors.New("gateway rejected bearer token")

// Number is a decimal that marshals as a bare JSON number; the gateway
// rejects quoted amounts.
type Number struct{ decimal.Decimal }

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

type Customization struct {
	Title   string `json:"title,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// CreateRequest is the gateway's "create payment request" body.
type CreateRequest struct {
	Amount                Number          `json:"amount"`
	CurrencyCode          string          `json:"currencyCode"`
	Description           string          `json:"description"`
	PayerNote             string          `json:"payerNote,omitempty"`
	MchTransactionRef     string          `json:"mchTransactionRef"`
	ReturnURL             string          `json:"returnUrl"`
	CancelURL             string          `json:"cancelUrl"`
	CallbackURL           string          `json:"callbackUrl"`
	ReceivingEntityName   string          `json:"receivingEntityName,omitempty"`
	TransactionTag        string          `json:"transactionTag,omitempty"`
	ServiceDiscountAmount Number          `json:"serviceDiscountAmount"`
	Customization         Customization   `json:"customization"`
	PaymentChannel        string          `json:"paymentChannel"`
	MobileWalletNumber    string          `json:"mobileWalletNumber,omitempty"`
	BankAccountNumber     string          `json:"bankAccountNumber,omitempty"`
	BankCode              string          `json:"bankCode,omitempty"`
}

// createResponse is tolerant: the gateway has returned the redirect link
// under several keys over time.
type createResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	Data     struct {
		RequestID   string `json:"requestId"`
		RedirectURL string `json:"redirectUrl"`
		PaymentURL  string `json:"paymentUrl"`
		Links       struct {
			PaymentAuthURL string `json:"paymentAuthUrl"`
		} `json:"links"`
	} `json:"data"`
}

func (r createResponse) redirectURL() string {
	for _, u := range []string{r.Data.RedirectURL, r.Data.PaymentURL, r.Data.Links.PaymentAuthURL} {
		if u != "" {
			return u
		}
	}
	return ""
}

type CreateResult struct {
	RequestID   string
	RedirectURL string
}

// Gateway is the HTTP client for payment request creation.
type Gateway struct {
	BaseURL string
	AppID   string
	HTTP    *http.Client
}

func (g *Gateway) CreatePaymentRequest(ctx context.Context, token string, body CreateRequest) (CreateResult, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return CreateResult{}, apperr.Gateway("encode payment request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+createRequestPath, bytes.NewReader(raw))
	if err != nil {
		return CreateResult{}, apperr.Gateway("build payment request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-App-ID", g.AppID)

	start := time.Now()
	resp, err := g.HTTP.Do(req)
	metrics.GatewayCallDuration.WithLabelValues("create_request").Observe(time.Since(start).Seconds())
	if err != nil {
		return CreateResult{}, apperr.Gateway("payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return CreateResult{}, apperr.Gateway("payment gateway rejected credentials", ErrTokenRejected)
	}

	var cr createResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return CreateResult{}, apperr.Gateway(fmt.Sprintf("unreadable gateway response (HTTP %d)", resp.StatusCode), err)
	}
	if !cr.Success {
		msg := cr.ErrorMsg
		if msg == "" {
			msg = "payment failed"
		}
		return CreateResult{}, apperr.Gateway(msg, nil)
	}

	redirect := cr.redirectURL()
	if redirect == "" {
		return CreateResult{}, apperr.Gateway("missing redirect URL", nil)
	}
	if cr.Data.RequestID == "" {
		return CreateResult{}, apperr.Gateway("missing request id", nil)
	}
	return CreateResult{RequestID: cr.Data.RequestID, RedirectURL: redirect}, nil
}
