package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logx"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	kafkago "github.com/segmentio/kafka-go"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type BankDetails struct {
	AccountNumber string `json:"accountNumber"`
	BankCode      string `json:"bankCode"`
}

// OrderIntent is a normalized checkout request.
type OrderIntent struct {
	Amount      decimal.Decimal
	Currency    string `validate:"required,len=3,alpha"`
	Description string `validate:"max=255"`
	Customer    orders.Customer
	Items       []orders.LineItem `validate:"required,min=1"`
	Channel     orders.Channel    `validate:"required,oneof=mobile card bank"`
	Phone       string
	Bank        *BankDetails
	Discount    decimal.Decimal
}

func (in OrderIntent) Validate() error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Validation(fmt.Sprintf("%s failed %q validation", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return apperr.Validation(err.Error())
	}
	if !in.Amount.IsPositive() {
		return apperr.Validation("amount must be greater than zero")
	}
	if in.Discount.IsNegative() {
		return apperr.Validation("discount must not be negative")
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return apperr.Validation(fmt.Sprintf("items[%d]: product id is required", i))
		}
		if it.Quantity <= 0 {
			return apperr.Validation(fmt.Sprintf("items[%d]: quantity must be positive", i))
		}
		if it.UnitPrice.IsNegative() {
			return apperr.Validation(fmt.Sprintf("items[%d]: price must not be negative", i))
		}
	}
	switch in.Channel {
	case orders.ChannelMobile:
		if strings.TrimSpace(in.Phone) == "" {
			return apperr.Validation("phone is required for mobile payments")
		}
	case orders.ChannelBank:
		if in.Bank == nil || strings.TrimSpace(in.Bank.AccountNumber) == "" || strings.TrimSpace(in.Bank.BankCode) == "" {
			return apperr.Validation("bank account number and bank code are required for bank payments")
		}
	}
	return nil
}

var channelCodes = map[orders.Channel]string{
	orders.ChannelMobile: "MWALLET",
	orders.ChannelCard:   "CARD",
	orders.ChannelBank:   "BANK",
}

type Tokens interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

type Requester interface {
	CreatePaymentRequest(ctx context.Context, token string, body CreateRequest) (CreateResult, error)
}

// Options are the merchant-level values stamped on every payment request.
type Options struct {
	StoreName           string
	ReceivingEntityName string
	ReturnURL           string
	CancelURL           string
	CallbackURL         string // must point at the payment webhook endpoint
	LogoURL             string
	Producer            string // event producer name
}

type InitiateResult struct {
	PaymentURL string `json:"paymentUrl"`
	RequestID  string `json:"requestId"`
	OrderID    string `json:"-"`
}

type Initiator struct {
	Store     orders.Store
	Tokens    Tokens
	Gateway   Requester
	Publisher kafkax.Publisher // optional
	Opts      Options
	Log       *slog.Logger
	Now       func() time.Time
}

// Initiate records a pending order, then asks the gateway for a payment
// request. The order write comes first so a crash after the gateway call
// still leaves a traceable record. Each call is a new attempt.
func (i *Initiator) Initiate(ctx context.Context, in OrderIntent) (InitiateResult, error) {
	log := i.log()
	if err := in.Validate(); err != nil {
		metrics.InitiationsTotal.WithLabelValues("invalid").Inc()
		return InitiateResult{}, err
	}

	ref := NewTransactionRef(i.now())
	order := &orders.Order{
		TransactionRef: ref,
		PaymentMethod:  in.Channel,
		PaymentStatus:  orders.PaymentPending,
		Status:         orders.StatusPending,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Customer:       in.Customer,
		Items:          in.Items,
	}
	orderID, err := i.Store.Create(ctx, order)
	if err != nil {
		metrics.InitiationsTotal.WithLabelValues("store_error").Inc()
		log.Error("pending order write failed", "transaction_ref", ref, "err", err)
		return InitiateResult{}, err
	}
	log = log.With("order_id", orderID, "transaction_ref", ref)
	log.Info("pending order recorded", "amount", in.Amount.String(), "currency", in.Currency, "channel", in.Channel)

	res, err := i.requestPayment(ctx, in, ref)
	if err != nil {
		metrics.InitiationsTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		log.Warn("payment request failed", "err", err)
		if perr := i.Store.Patch(ctx, orderID, orders.OrderPatch{PaymentStatus: orders.Ptr(orders.PaymentFailed)}); perr != nil {
			log.Error("marking order failed did not persist", "err", perr)
		}
		return InitiateResult{}, err
	}

	if err := i.Store.Patch(ctx, orderID, orders.OrderPatch{RequestID: orders.Ptr(res.RequestID)}); err != nil {
		// The gateway knows this payment but we cannot correlate it; the
		// webhook for it will answer 404 until someone links the order by ref.
		metrics.InitiationsTotal.WithLabelValues("store_error").Inc()
		log.Error("correlation id write failed", "request_id", res.RequestID, "err", err)
		return InitiateResult{}, err
	}
	log.Info("payment request created", "request_id", res.RequestID)
	metrics.InitiationsTotal.WithLabelValues("ok").Inc()

	i.publishInitiated(orderID, res.RequestID, ref, in)

	return InitiateResult{PaymentURL: res.RedirectURL, RequestID: res.RequestID, OrderID: orderID}, nil
}

func (i *Initiator) requestPayment(ctx context.Context, in OrderIntent, ref string) (CreateResult, error) {
	token, err := i.Tokens.AccessToken(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	res, err := i.Gateway.CreatePaymentRequest(ctx, token, i.buildRequest(in, ref))
	if errors.Is(err, ErrTokenRejected) {
		i.Tokens.Invalidate(ctx)
	}
	return res, err
}

func (i *Initiator) buildRequest(in OrderIntent, ref string) CreateRequest {
	desc := in.Description
	if desc == "" {
		desc = "Order from " + i.Opts.StoreName
	}
	payer := in.Customer.Name
	if payer == "" {
		payer = "guest"
	}
	tag := in.Phone
	if tag == "" {
		tag = "N/A"
	}

	req := CreateRequest{
		Amount:                Number{in.Amount},
		CurrencyCode:          in.Currency,
		Description:           desc,
		PayerNote:             fmt.Sprintf("%s order - %s", i.Opts.StoreName, payer),
		MchTransactionRef:     ref,
		ReturnURL:             i.Opts.ReturnURL,
		CancelURL:             i.Opts.CancelURL,
		CallbackURL:           i.Opts.CallbackURL,
		ReceivingEntityName:   i.Opts.ReceivingEntityName,
		TransactionTag:        "client-" + tag,
		ServiceDiscountAmount: Number{in.Discount},
		Customization: Customization{
			Title:   i.Opts.StoreName + " - secure payment",
			LogoURL: i.Opts.LogoURL,
		},
		PaymentChannel: channelCodes[in.Channel],
	}
	switch in.Channel {
	case orders.ChannelMobile:
		req.MobileWalletNumber = in.Phone
	case orders.ChannelBank:
		req.BankAccountNumber = in.Bank.AccountNumber
		req.BankCode = in.Bank.BankCode
	}
	return req
}

func (i *Initiator) publishInitiated(orderID, requestID, ref string, in OrderIntent) {
	if i.Publisher == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentInitiated,
		EventVersion:  1,
		OccurredAt:    i.now().UTC(),
		Producer:      i.Opts.Producer,
		CorrelationID: requestID,
		Payload: kafkax.MustMarshal(orders.PaymentInitiatedPayload{
			OrderID:        orderID,
			RequestID:      requestID,
			TransactionRef: ref,
			Amount:         in.Amount,
			Currency:       in.Currency,
			PaymentMethod:  in.Channel,
		}),
	}
	i.Publisher.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventPaymentInitiated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// NewTransactionRef returns a merchant reference unique per attempt:
// millisecond timestamp plus the first 8 hex digits of a random UUID.
func NewTransactionRef(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

func (i *Initiator) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i *Initiator) log() *slog.Logger {
	if i.Log == nil {
		return logx.Discard()
	}
	return i.Log
}
