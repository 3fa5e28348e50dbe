package redisx

import "time"

const (
	// Gateway bearer token: payment:token:{app_id} -> token
	KeyGatewayToken = "payment:token:%s"

	// Terminal order status for the payment-success page:
	// order_status:{request_id} -> {"requestId": "...", "paymentStatus": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup of processed deliveries: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour

	// Tokens are dropped this long before the gateway says they expire.
	TokenExpirySkew = 30 * time.Second
)
