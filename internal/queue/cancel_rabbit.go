package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/seat-ticketing/internal/model"
)

// RabbitCancelScheduler delays cancel messages without a plugin: each
// message expires in the delay queue, which dead-letters it into the
// cancel queue where the worker consumes it.
type RabbitCancelScheduler struct {
	conn        *amqp.Connection
	delayQueue  string
	cancelQueue string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitCancelScheduler(conn *amqp.Connection, delayQueue, cancelQueue string) (*RabbitCancelScheduler, error) {
	s := &RabbitCancelScheduler{conn: conn, delayQueue: delayQueue, cancelQueue: cancelQueue}
	if _, err := s.channel(); err != nil {
		return nil, err
	}
	return s, nil
}

// delayQueueArgs routes expired messages to the cancel queue through the
// default exchange.
func delayQueueArgs(cancelQueue string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cancelQueue,
	}
}

func (s *RabbitCancelScheduler) channel() (*amqp.Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareCancelTopology(ch, s.delayQueue, s.cancelQueue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	s.ch = ch
	return ch, nil
}

func declareCancelTopology(ch *amqp.Channel, delayQueue, cancelQueue string) error {
	if _, err := ch.QueueDeclare(cancelQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", cancelQueue, err)
	}
	if delayQueue == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(delayQueue, true, false, false, false, delayQueueArgs(cancelQueue)); err != nil {
		return fmt.Errorf("queue declare %s: %w", delayQueue, err)
	}
	return nil
}

func cancelPublishing(msg model.DelayCancel, delay time.Duration) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}
	ms := delay.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(msg.OrderNumber, 10),
		Expiration:   strconv.FormatInt(ms, 10),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

// Schedule publishes msg so that it reaches the cancel queue after delay.
func (s *RabbitCancelScheduler) Schedule(ctx context.Context, msg model.DelayCancel, delay time.Duration) error {
	pub, err := cancelPublishing(msg, delay)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", s.delayQueue, false, false, pub)
}

func (s *RabbitCancelScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil
	}
	return s.ch.Close()
}
