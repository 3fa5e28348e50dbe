package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventPaymentInitiated = "PaymentInitiated"
	EventPaymentCompleted = "PaymentCompleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // gateway request id
	Payload       json.RawMessage `json:"payload"`
}

type PaymentInitiatedPayload struct {
	OrderID        string          `json:"order_id"`
	RequestID      string          `json:"request_id"`
	TransactionRef string          `json:"transaction_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PaymentMethod  Channel         `json:"payment_method"`
}

// PaymentCompletedPayload carries the line items so downstream consumers do
// not have to read the order back.
type PaymentCompletedPayload struct {
	OrderID       string          `json:"order_id"`
	RequestID     string          `json:"request_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Items         []LineItem      `json:"items"`
}
