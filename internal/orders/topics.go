package orders

const (
	TopicPaymentInitiated = "order.payment.initiated"
	TopicPaymentCompleted = "order.payment.completed"
)

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
