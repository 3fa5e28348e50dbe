package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders/orderstest"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder() *orders.Order {
	return &orders.Order{
		ID:             "order-1",
		RequestID:      "REQ123",
		TransactionRef: "ORD-1-abcdef12",
		PaymentMethod:  orders.ChannelMobile,
		PaymentStatus:  orders.PaymentPending,
		Status:         orders.StatusPending,
		Amount:         decimal.RequireFromString("59.98"),
		Currency:       "XAF",
		Customer:       orders.Customer{Name: "Awa", Phone: "677000000"},
		Items: []orders.LineItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("29.99")},
		},
	}
}

func successful() Notification {
	n, _ := ParseNotification([]byte(`{
		"eventType":"REQUEST.COMPLETED",
		"resource":{"requestId":"REQ123","status":"SUCCESSFUL","amount":59.98,"currencyCode":"XAF","transactionId":"TXN1"}
	}`))
	return n
}

func TestReconcileCompletesOrder(t *testing.T) {
	store := orderstest.New()
	store.Put(pendingOrder())
	rec := &kafkax.Recorder{}
	r := &Reconciler{Store: store, Publisher: rec}

	out, err := r.Reconcile(context.Background(), successful())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)

	o, err := store.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, "TXN1", o.Payment.TransactionID)
	assert.Empty(t, o.Anomaly)
	assert.Equal(t, pendingOrder().Customer, o.Customer)
	assert.Equal(t, pendingOrder().Items, o.Items)

	require.Equal(t, 1, rec.Len())
	var ev orders.Envelope
	require.NoError(t, json.Unmarshal(rec.Messages[0].Value, &ev))
	payload, err := kafkax.UnwrapPayload[orders.PaymentCompletedPayload](ev.Payload)
	require.NoError(t, err)
	assert.Equal(t, "order-1", payload.OrderID)
	assert.Len(t, payload.Items, 1)
}

func TestReconcileReplayConvergesWithoutDedup(t *testing.T) {
	store := orderstest.New()
	store.Put(pendingOrder())
	r := &Reconciler{Store: store}

	_, err := r.Reconcile(context.Background(), successful())
	require.NoError(t, err)
	first, _ := store.Get(context.Background(), "order-1")

	_, err = r.Reconcile(context.Background(), successful())
	require.NoError(t, err)
	second, _ := store.Get(context.Background(), "order-1")

	require.Len(t, store.Patches, 2)
	assert.Equal(t, store.Patches[0], store.Patches[1])
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.Customer, second.Customer)
	assert.Equal(t, first.Payment, second.Payment)
	assert.Equal(t, first.PaymentStatus, second.PaymentStatus)
}

func TestReconcileReplaySkippedWithDedup(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	defer rdb.Close()

	store := orderstest.New()
	store.Put(pendingOrder())
	rec := &kafkax.Recorder{}
	r := &Reconciler{Store: store, Dedup: rdb, Publisher: rec}

	out, err := r.Reconcile(context.Background(), successful())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)
	assert.True(t, mr.Exists("dedup:reconciler:REQ123"))

	out, err = r.Reconcile(context.Background(), successful())
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, out)
	assert.Len(t, store.Patches, 1)
	assert.Equal(t, 1, rec.Len())
}

func TestReconcileDedupMarkerOnlyAfterCommit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	defer rdb.Close()

	store := orderstest.New()
	store.Put(pendingOrder())
	store.PatchFunc = func(string, orders.OrderPatch) error {
		return apperr.Persistence("update order", errors.New("conn reset"))
	}
	r := &Reconciler{Store: store, Dedup: rdb}

	out, err := r.Reconcile(context.Background(), successful())
	require.Error(t, err)
	assert.Equal(t, OutcomeError, out)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.False(t, mr.Exists("dedup:reconciler:REQ123"))
}

func TestReconcileIgnoresWithoutMutation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Outcome
	}{
		{"other event", `{"eventType":"REQUEST.CREATED","resource":{"requestId":"REQ123","status":"SUCCESSFUL"}}`, OutcomeIgnoredEvent},
		{"failed payment", `{"eventType":"REQUEST.COMPLETED","resource":{"requestId":"REQ123","status":"FAILED"}}`, OutcomeIgnoredStatus},
		{"cancelled payment", `{"eventType":"REQUEST.COMPLETED","resource":{"requestId":"REQ123","status":"CANCELLED"}}`, OutcomeIgnoredStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := orderstest.New()
			store.Put(pendingOrder())
			n, err := ParseNotification([]byte(tt.body))
			require.NoError(t, err)

			out, err := (&Reconciler{Store: store}).Reconcile(context.Background(), n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
			assert.Zero(t, store.Mutations())

			o, _ := store.Get(context.Background(), "order-1")
			assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
		})
	}
}

func TestReconcileMissingRequestID(t *testing.T) {
	store := orderstest.New()
	n := successful()
	n.RequestID = ""

	out, err := (&Reconciler{Store: store}).Reconcile(context.Background(), n)
	assert.Equal(t, OutcomeInvalid, out)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, store.Mutations())
}

func TestReconcileUnknownCorrelationNeverCreates(t *testing.T) {
	store := orderstest.New()

	out, err := (&Reconciler{Store: store}).Reconcile(context.Background(), successful())
	assert.Equal(t, OutcomeNotFound, out)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Zero(t, store.Len())
	assert.Zero(t, store.Mutations())
}

func TestReconcileDuplicateCorrelation(t *testing.T) {
	store := orderstest.New()
	a, b := pendingOrder(), pendingOrder()
	b.ID = "order-2"
	store.Put(a)
	store.Put(b)

	out, err := (&Reconciler{Store: store}).Reconcile(context.Background(), successful())
	assert.Equal(t, OutcomeConflict, out)
	assert.ErrorIs(t, err, orders.ErrDuplicateCorrelation)
	assert.Zero(t, store.Mutations())
}

func TestReconcileAmountMismatchIsFlagged(t *testing.T) {
	store := orderstest.New()
	store.Put(pendingOrder())
	n := successful()
	n.Amount = decimal.RequireFromString("10")
	n.Currency = "EUR"

	out, err := (&Reconciler{Store: store}).Reconcile(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)

	o, _ := store.Get(context.Background(), "order-1")
	assert.Equal(t, orders.PaymentCompleted, o.PaymentStatus)
	assert.True(t, decimal.RequireFromString("59.98").Equal(o.Amount))
	assert.Equal(t, "XAF", o.Currency)
	assert.Contains(t, o.Anomaly, "amount 10 reported, 59.98 expected")
	assert.Contains(t, o.Anomaly, "currency EUR reported, XAF expected")
}

func TestReconcileKeepsFulfilmentStatus(t *testing.T) {
	store := orderstest.New()
	o := pendingOrder()
	o.PaymentStatus = orders.PaymentCompleted
	o.Status = orders.StatusShipped
	store.Put(o)

	_, err := (&Reconciler{Store: store}).Reconcile(context.Background(), successful())
	require.NoError(t, err)

	got, _ := store.Get(context.Background(), "order-1")
	assert.Equal(t, orders.StatusShipped, got.Status)
	require.Len(t, store.Patches, 1)
	assert.Nil(t, store.Patches[0].Status)
}

func TestReconcileFailedThenSuccessful(t *testing.T) {
	store := orderstest.New()
	o := pendingOrder()
	o.PaymentStatus = orders.PaymentFailed
	store.Put(o)

	_, err := (&Reconciler{Store: store}).Reconcile(context.Background(), successful())
	require.NoError(t, err)

	got, _ := store.Get(context.Background(), "order-1")
	assert.Equal(t, orders.PaymentCompleted, got.PaymentStatus)
}

func TestReconcileRefusesUnknownPaymentStatus(t *testing.T) {
	store := orderstest.New()
	o := pendingOrder()
	o.PaymentStatus = orders.PaymentStatus("refunded")
	store.Put(o)
	r := &Reconciler{Store: store}

	out, err := r.Reconcile(context.Background(), successful())
	assert.Equal(t, OutcomeConflict, out)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Zero(t, store.Mutations())
}
