package orders

// PaymentStatus tracks the gateway side of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Status is the fulfilment lifecycle, independent of PaymentStatus.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition reports whether the fulfilment status may move from -> to.
// Re-applying the current status is allowed so replays stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return validNext[from][to]
}

var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:   {PaymentCompleted: true, PaymentFailed: true},
	PaymentFailed:    {PaymentCompleted: true}, // a late success webhook still wins
	PaymentCompleted: {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	if from == to {
		return true
	}
	return validPaymentNext[from][to]
}

// Terminal reports whether no further payment transition is possible. A
// failed payment is not terminal since a late success may still land.
func (s PaymentStatus) Terminal() bool {
	return len(validPaymentNext[s]) == 0
}
