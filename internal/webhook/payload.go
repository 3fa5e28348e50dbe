package webhook

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/shopspring/decimal"
)

const (
	EventRequestCompleted = "REQUEST.COMPLETED"
	StatusSuccessful      = "SUCCESSFUL"
)

// Notification is the normalized form of a gateway callback. Every field is
// set; absent values are zero.
type Notification struct {
	EventType string
	RequestID string
	Status    string

	Amount    decimal.Decimal
	HasAmount bool
	Currency  string

	TransactionID        string
	MchTransactionRef    string
	PartnerTransactionID string
	PayerNote            string
	ReceivingEntityName  string
	TransactionTime      *time.Time

	PayerUserID        string
	PayerName          string
	PayerPaymentMethod string
	PayerAccountID     string

	MerchantAccountID string
	MerchantFee       decimal.Decimal
	NetAmountReceived decimal.Decimal
}

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*s = flexString(n.String())
	}
	return nil
}

// flexAmount accepts a JSON number, a numeric string, "" or null.
type flexAmount struct {
	decimal.NullDecimal
}

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte(`""`)) || bytes.Equal(b, []byte("null")) {
		a.Valid = false
		return nil
	}
	return a.NullDecimal.UnmarshalJSON(b)
}

func (a flexAmount) orZero() decimal.Decimal {
	if a.Valid {
		return a.Decimal
	}
	return decimal.Zero
}

// wireNotification is a superset of every payload shape seen from the gateway.
type wireNotification struct {
	EventType  string     `json:"eventType"`
	ResourceID flexString `json:"resourceId"`
	Resource   struct {
		RequestID            flexString `json:"requestId"`
		RequestIDSnake       flexString `json:"request_id"`
		Status               string     `json:"status"`
		Amount               flexAmount `json:"amount"`
		CurrencyCode         string     `json:"currencyCode"`
		Currency             string     `json:"currency"`
		TransactionID        flexString `json:"transactionId"`
		TransferID           flexString `json:"transferId"`
		MchTransactionRef    flexString `json:"mchTransactionRef"`
		PartnerTransactionID flexString `json:"partnerTransactionId"`
		PayerNote            string     `json:"payerNote"`
		ReceivingEntityName  string     `json:"receivingEntityName"`
		TransactionTime      string     `json:"transactionTime"`
		CompletedAt          string     `json:"completedAt"`
		Payer                struct {
			UserID        flexString `json:"userId"`
			Name          string     `json:"name"`
			PaymentMethod string     `json:"paymentMethod"`
			AccountID     flexString `json:"accountId"`
		} `json:"payer"`
		Merchant struct {
			AccountID         flexString `json:"accountId"`
			Fee               flexAmount `json:"fee"`
			NetAmountReceived flexAmount `json:"netAmountReceived"`
		} `json:"merchant"`
	} `json:"resource"`
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ParseNotification maps a raw callback body onto a Notification. Only
// malformed JSON is an error; missing fields are left for the reconciler to
// judge.
func ParseNotification(body []byte) (Notification, error) {
	var w wireNotification
	if err := json.Unmarshal(body, &w); err != nil {
		return Notification{}, apperr.E(apperr.KindValidation, "malformed payload", err)
	}
	res := w.Resource
	return Notification{
		EventType: strings.ToUpper(strings.TrimSpace(w.EventType)),
		RequestID: firstNonEmpty(string(res.RequestID), string(res.RequestIDSnake), string(w.ResourceID)),
		Status:    strings.ToUpper(strings.TrimSpace(res.Status)),

		Amount:    res.Amount.orZero(),
		HasAmount: res.Amount.Valid,
		Currency:  strings.ToUpper(firstNonEmpty(res.CurrencyCode, res.Currency)),

		TransactionID:        firstNonEmpty(string(res.TransactionID), string(res.TransferID)),
		MchTransactionRef:    string(res.MchTransactionRef),
		PartnerTransactionID: string(res.PartnerTransactionID),
		PayerNote:            res.PayerNote,
		ReceivingEntityName:  res.ReceivingEntityName,
		TransactionTime:      parseTime(firstNonEmpty(res.TransactionTime, res.CompletedAt)),

		PayerUserID:        string(res.Payer.UserID),
		PayerName:          res.Payer.Name,
		PayerPaymentMethod: res.Payer.PaymentMethod,
		PayerAccountID:     string(res.Payer.AccountID),

		MerchantAccountID: string(res.Merchant.AccountID),
		MerchantFee:       res.Merchant.Fee.orZero(),
		NetAmountReceived: res.Merchant.NetAmountReceived.orZero(),
	}, nil
}
