package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Channel string

const (
	ChannelMobile Channel = "mobile"
	ChannelCard   Channel = "card"
	ChannelBank   Channel = "bank"
)

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Color struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
}

// LineItem references a catalog product by id only; the order stays valid
// when the product is later removed from the catalog.
type LineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Size      string          `json:"size,omitempty"`
	Color     Color           `json:"color,omitempty"`
}

// PaymentDetails is filled in only when the gateway reports completion.
type PaymentDetails struct {
	TransactionID        string          `json:"transactionId"`
	PartnerTransactionID string          `json:"partnerTransactionId"`
	PayerName            string          `json:"payerName"`
	PayerAccountID       string          `json:"payerAccountId"`
	PayerUserID          string          `json:"payerUserId"`
	PayerNote            string          `json:"payerNote"`
	PayerPaymentMethod   string          `json:"payerPaymentMethod"`
	TransactionTime      *time.Time      `json:"transactionTime,omitempty"`
	MerchantAccountID    string          `json:"merchantAccountId"`
	MerchantFee          decimal.Decimal `json:"merchantFee"`
	NetAmountReceived    decimal.Decimal `json:"netAmountReceived"`
	ReceivingEntityName  string          `json:"receivingEntity"`
}

type Order struct {
	ID             string          `json:"id"`
	RequestID      string          `json:"requestId,omitempty"` // correlation id, empty until the gateway answers
	TransactionRef string          `json:"transactionRef"`
	PaymentMethod  Channel         `json:"paymentMethod"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	Status         Status          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Customer       Customer        `json:"customer"`
	Items          []LineItem      `json:"items"`
	Payment        PaymentDetails  `json:"payment"`
	Anomaly        string          `json:"anomaly,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// OrderPatch is the set of fields a caller may change after creation.
// Customer and Items are deliberately absent: they are fixed at initiation.
type OrderPatch struct {
	RequestID     *string
	PaymentStatus *PaymentStatus
	Status        *Status
	Payment       *PaymentDetails // replaces every payment metadata column
	Anomaly       *string
}

func (p OrderPatch) Empty() bool {
	return p.RequestID == nil && p.PaymentStatus == nil && p.Status == nil &&
		p.Payment == nil && p.Anomaly == nil
}

func Ptr[T any](v T) *T { return &v }
