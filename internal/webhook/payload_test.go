package webhook

import (
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotificationFullPayload(t *testing.T) {
	n, err := ParseNotification([]byte(`{
		"eventType": "REQUEST.COMPLETED",
		"resource": {
			"requestId": "REQ123",
			"status": "SUCCESSFUL",
			"amount": 59.98,
			"currencyCode": "XAF",
			"transactionId": "TXN1",
			"mchTransactionRef": "ORD-1-abcdef12",
			"partnerTransactionId": "P1",
			"payerNote": "thanks",
			"receivingEntityName": "Sartorial SARL",
			"transactionTime": "2026-05-01T10:00:00Z",
			"payer": {"userId": 77, "name": "Awa", "paymentMethod": "MTN", "accountId": "237600000000"},
			"merchant": {"accountId": "M1", "fee": "1.20", "netAmountReceived": 58.78}
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, EventRequestCompleted, n.EventType)
	assert.Equal(t, "REQ123", n.RequestID)
	assert.Equal(t, StatusSuccessful, n.Status)
	assert.True(t, n.HasAmount)
	assert.True(t, decimal.RequireFromString("59.98").Equal(n.Amount))
	assert.Equal(t, "XAF", n.Currency)
	assert.Equal(t, "TXN1", n.TransactionID)
	assert.Equal(t, "77", n.PayerUserID)
	assert.Equal(t, "MTN", n.PayerPaymentMethod)
	assert.True(t, decimal.RequireFromString("1.2").Equal(n.MerchantFee))
	assert.True(t, decimal.RequireFromString("58.78").Equal(n.NetAmountReceived))
	require.NotNil(t, n.TransactionTime)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), *n.TransactionTime)
}

func TestParseNotificationAlternateSpellings(t *testing.T) {
	n, err := ParseNotification([]byte(`{
		"eventType": "request.completed",
		"resource": {
			"request_id": "REQ9",
			"status": "successful",
			"amount": "1500",
			"currency": "xaf",
			"transferId": "TR1",
			"completedAt": "2026-05-01 10:00:00"
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, EventRequestCompleted, n.EventType)
	assert.Equal(t, "REQ9", n.RequestID)
	assert.Equal(t, StatusSuccessful, n.Status)
	assert.True(t, decimal.NewFromInt(1500).Equal(n.Amount))
	assert.Equal(t, "XAF", n.Currency)
	assert.Equal(t, "TR1", n.TransactionID)
	require.NotNil(t, n.TransactionTime)
}

func TestParseNotificationResourceIDFallback(t *testing.T) {
	n, err := ParseNotification([]byte(`{"eventType":"REQUEST.COMPLETED","resourceId":"REQ7","resource":{"status":"SUCCESSFUL"}}`))
	require.NoError(t, err)
	assert.Equal(t, "REQ7", n.RequestID)
}

func TestParseNotificationDefaults(t *testing.T) {
	n, err := ParseNotification([]byte(`{"eventType":"REQUEST.COMPLETED","resource":{"amount":null,"merchant":{"fee":""},"transactionTime":"yesterday"}}`))
	require.NoError(t, err)

	assert.Empty(t, n.RequestID)
	assert.False(t, n.HasAmount)
	assert.True(t, n.Amount.IsZero())
	assert.True(t, n.MerchantFee.IsZero())
	assert.Nil(t, n.TransactionTime)
	assert.Empty(t, n.PayerName)
}

func TestParseNotificationMalformed(t *testing.T) {
	for _, body := range []string{`{`, `[]`, `{"resource":{"amount":"abc"}}`, ``} {
		_, err := ParseNotification([]byte(body))
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), body)
	}
}
