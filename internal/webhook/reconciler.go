package webhook

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
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeReplay        Outcome = "replay"
	OutcomeIgnoredEvent  Outcome = "ignored_event"
	OutcomeIgnoredStatus Outcome = "ignored_status"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeUnauthorized  Outcome = "unauthorized"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeConflict      Outcome = "conflict"
	OutcomeError         Outcome = "error"
)

// OutcomeFor classifies a Reconcile error for logs and metrics.
func OutcomeFor(err error) Outcome {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return OutcomeInvalid
	case apperr.KindUnauthorized:
		return OutcomeUnauthorized
	case apperr.KindNotFound:
		return OutcomeNotFound
	case apperr.KindConflict:
		return OutcomeConflict
	default:
		return OutcomeError
	}
}

const dedupScope = "reconciler"

// Reconciler applies completed-payment notifications to pending orders.
type Reconciler struct {
	Store     orders.Store
	Dedup     redis.Cmdable    // optional
	Publisher kafkax.Publisher // optional
	Producer  string
	Log       *slog.Logger
	Now       func() time.Time
}

// Reconcile runs one authenticated, parsed notification through the state
// machine. A nil error means the delivery must be acknowledged, whether or
// not it changed anything.
func (r *Reconciler) Reconcile(ctx context.Context, n Notification) (Outcome, error) {
	log := r.log().With("event_type", n.EventType, "request_id", n.RequestID)

	if n.EventType != EventRequestCompleted {
		log.Info("webhook ignored: event type not handled")
		return OutcomeIgnoredEvent, nil
	}
	if n.Status != StatusSuccessful {
		log.Info("webhook ignored: payment not successful", "status", n.Status)
		return OutcomeIgnoredStatus, nil
	}
	if n.RequestID == "" {
		return OutcomeInvalid, apperr.Validation("missing requestId")
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, dedupScope, n.RequestID)
	if r.Dedup != nil {
		seen, err := redisx.Exists(ctx, r.Dedup, dedupKey)
		if err != nil {
			log.Warn("dedup lookup failed, reconciling anyway", "err", err)
		} else if seen {
			log.Info("webhook acknowledged: already reconciled")
			return OutcomeReplay, nil
		}
	}

	order, err := r.Store.FindByCorrelationID(ctx, n.RequestID)
	if err != nil {
		switch {
		case apperr.KindOf(err) == apperr.KindNotFound:
			log.Warn("no pending order for correlation id")
		case errors.Is(err, orders.ErrDuplicateCorrelation):
			log.Error("correlation id matches more than one order")
		default:
			log.Error("order lookup failed", "err", err)
		}
		return OutcomeFor(err), err
	}
	log = log.With("order_id", order.ID)
	log.Info("webhook matched order", "payment_status", order.PaymentStatus)

	if !orders.CanTransitionPayment(order.PaymentStatus, orders.PaymentCompleted) {
		log.Error("order payment status cannot move to completed", "payment_status", order.PaymentStatus)
		return OutcomeConflict, apperr.E(apperr.KindConflict, "order cannot accept this payment", nil)
	}

	patch := r.completionPatch(order, n, log)
	// Customer and items are fixed at initiation; OrderPatch cannot carry them.
	if err := r.Store.Patch(ctx, order.ID, patch); err != nil {
		log.Error("completion patch failed", "err", err)
		return OutcomeFor(err), err
	}
	log.Info("order patched", "payment_status", orders.PaymentCompleted, "transaction_id", n.TransactionID)

	if r.Dedup != nil {
		if err := r.Dedup.Set(ctx, dedupKey, order.ID, redisx.TTLDedup).Err(); err != nil {
			log.Warn("dedup marker write failed", "err", err)
		}
	}
	r.publishCompleted(order, n)

	log.Info("webhook acknowledged")
	return OutcomeCompleted, nil
}

// completionPatch sets absolute values only, so replays converge on the same
// row.
func (r *Reconciler) completionPatch(o *orders.Order, n Notification, log *slog.Logger) orders.OrderPatch {
	p := orders.OrderPatch{
		PaymentStatus: orders.Ptr(orders.PaymentCompleted),
		Payment: &orders.PaymentDetails{
			TransactionID:        n.TransactionID,
			PartnerTransactionID: n.PartnerTransactionID,
			PayerName:            n.PayerName,
			PayerAccountID:       n.PayerAccountID,
			PayerUserID:          n.PayerUserID,
			PayerNote:            n.PayerNote,
			PayerPaymentMethod:   n.PayerPaymentMethod,
			TransactionTime:      n.TransactionTime,
			MerchantAccountID:    n.MerchantAccountID,
			MerchantFee:          n.MerchantFee,
			NetAmountReceived:    n.NetAmountReceived,
			ReceivingEntityName:  n.ReceivingEntityName,
		},
		Anomaly: orders.Ptr(amountAnomaly(o, n)),
	}
	// Fulfilment may already have moved the order past paid.
	if orders.CanTransition(o.Status, orders.StatusPaid) {
		p.Status = orders.Ptr(orders.StatusPaid)
	}
	if *p.Anomaly != "" {
		metrics.PaymentAnomaliesTotal.Inc()
		log.Error("payment amount mismatch", "anomaly", *p.Anomaly,
			"order_amount", o.Amount.String(), "order_currency", o.Currency)
	}
	return p
}

// amountAnomaly describes any disagreement between what the order expected
// and what the gateway reports as paid. Empty means consistent.
func amountAnomaly(o *orders.Order, n Notification) string {
	var parts []string
	if n.HasAmount && !n.Amount.Equal(o.Amount) {
		parts = append(parts, fmt.Sprintf("amount %s reported, %s expected", n.Amount.String(), o.Amount.String()))
	}
	if n.Currency != "" && !strings.EqualFold(n.Currency, o.Currency) {
		parts = append(parts, fmt.Sprintf("currency %s reported, %s expected", n.Currency, o.Currency))
	}
	return strings.Join(parts, "; ")
}

func (r *Reconciler) publishCompleted(o *orders.Order, n Notification) {
	if r.Publisher == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentCompleted,
		EventVersion:  1,
		OccurredAt:    r.now().UTC(),
		Producer:      r.Producer,
		CorrelationID: n.RequestID,
		Payload: kafkax.MustMarshal(orders.PaymentCompletedPayload{
			OrderID:       o.ID,
			RequestID:     n.RequestID,
			TransactionID: n.TransactionID,
			Amount:        o.Amount,
			Currency:      o.Currency,
			Items:         o.Items,
		}),
	}
	r.Publisher.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventPaymentCompleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Reconciler) log() *slog.Logger {
	if r.Log == nil {
		return logx.Discard()
	}
	return r.Log
}
