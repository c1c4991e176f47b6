package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/model"
)

// CancelHandler cancels one unpaid order.
type CancelHandler func(ctx context.Context, msg model.DelayCancel) error

// StartCancelConsumer connects to RabbitMQ, declares the cancel topology and
// consumes cancel messages until ctx is done. Broken connections are
// redialled with backoff; a message whose handler fails is rejected without
// requeue so one bad message cannot spin the consumer.
func StartCancelConsumer(ctx context.Context, url, delayQueue, cancelQueue string, handle CancelHandler) error {
	for {
		conn, err := Dial(ctx, url)
		if err != nil {
			return err
		}
		err = consumeLoop(ctx, conn, delayQueue, cancelQueue, handle)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logx.Errorf("cancel-consumer: consume loop ended: %v; reconnecting", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, delayQueue, cancelQueue string, handle CancelHandler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logx.Errorf("cancel-consumer: set QoS failed: %v", err)
	}
	if err := declareCancelTopology(ch, delayQueue, cancelQueue); err != nil {
		return err
	}

	msgs, err := ch.ConsumeWithContext(ctx, cancelQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleDelivery(ctx, d.Body, handle); err != nil {
			logx.WithContext(ctx).Errorf("cancel-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

var errMalformed = errors.New("malformed cancel message")

func handleDelivery(ctx context.Context, body []byte, handle CancelHandler) error {
	var msg model.DelayCancel
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.OrderNumber == 0 {
		return fmt.Errorf("%w: no order number", errMalformed)
	}
	return handle(ctx, msg)
}

// isPermanent reports failures that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, errMalformed)
}
