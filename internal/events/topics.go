package events

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicStockRejected      = "order.stock.rejected"
)

// Partition key = order id so all events of one order keep their ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
