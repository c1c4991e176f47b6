package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type pendingWrite struct {
	onSuccess func(Ack)
	onFailure func(error)
}

// KafkaPublisher writes asynchronously. WriteMessages returns as soon as a
// message is queued; the writer's Completion hook later reports the batch
// result, which is routed to each caller by the correlation header.
type KafkaPublisher struct {
	w       *kafka.Writer
	pending sync.Map // correlation id -> pendingWrite
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	p := &KafkaPublisher{}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion:   p.complete,
	}
	return p
}

// Publish queues payload under key. Exactly one of onSuccess or onFailure
// runs later on a writer goroutine, unless Publish itself fails.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte, onSuccess func(Ack), onFailure func(error)) error {
	id := uuid.NewString()
	p.pending.Store(id, pendingWrite{onSuccess: onSuccess, onFailure: onFailure})
	err := p.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: []kafka.Header{{Key: CorrelationHeader, Value: []byte(id)}},
	})
	if err != nil {
		p.pending.Delete(id)
		return err
	}
	return nil
}

func (p *KafkaPublisher) complete(messages []kafka.Message, err error) {
	for _, m := range messages {
		v, ok := p.pending.LoadAndDelete(correlationID(m.Headers))
		if !ok {
			continue
		}
		pw := v.(pendingWrite)
		if err != nil {
			pw.onFailure(err)
			continue
		}
		topic := m.Topic
		if topic == "" {
			topic = p.w.Topic
		}
		pw.onSuccess(Ack{Topic: topic, Partition: m.Partition, Offset: m.Offset})
	}
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

func correlationID(headers []kafka.Header) string {
	for _, h := range headers {
		if h.Key == CorrelationHeader {
			return string(h.Value)
		}
	}
	return ""
}
