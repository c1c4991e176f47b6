// Package queue carries order traffic over the brokers: asynchronous order
// submission (Kafka or RabbitMQ) and delayed cancellation of unpaid orders
// (RabbitMQ dead-lettering or asynq).
package queue

// Header carrying the id that routes a Kafka completion back to its caller.
const CorrelationHeader = "x-correlation-id"

// Default queue and task names.
const (
	DefaultOrderCreateQueue = "order.create"
	DefaultCancelDelayQueue = "order.cancel.delay"
	DefaultCancelQueue      = "order.cancel"

	TaskOrderCancel = "order:cancel"
)

// Ack describes where the broker accepted a message. Partition and Offset
// are zero for RabbitMQ; DeliveryTag is zero for Kafka.
type Ack struct {
	Topic       string
	Partition   int
	Offset      int64
	DeliveryTag uint64
}
