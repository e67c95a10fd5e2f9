package events

const (
	TopicOrderPending      = "order.pending"
	TopicOrderConfirmed    = "order.confirmed"
	TopicOrderCancelled    = "order.cancelled"
	TopicInventoryLowStock = "inventory.lowStock"
	TopicOfferAvailability = "offer.availabilityChanged"
	TopicProducerOrderPaid = "producer.orderPaid"
)

// Partition key for inventory-bound topics is the offer id, so all stock
// mutations for one offer land on one partition and stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
