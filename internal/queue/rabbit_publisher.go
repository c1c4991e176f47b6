package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/zeromicro/go-zero/core/logx"
)

// ErrNacked is reported when the broker refuses a published message.
var ErrNacked = errors.New("rabbitmq: message nacked by broker")

// RabbitPublisher publishes order submissions on a confirm-mode channel.
// The channel is reopened on the next publish after it closes.
type RabbitPublisher struct {
	conn           *amqp.Connection
	queue          string
	confirmTimeout time.Duration

	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbitPublisher declares the durable queue and puts a channel into
// confirm mode. Waiting for a confirmation gives up after confirmTimeout;
// a non-positive confirmTimeout waits until the broker answers.
func NewRabbitPublisher(conn *amqp.Connection, queue string, confirmTimeout time.Duration) (*RabbitPublisher, error) {
	p := &RabbitPublisher{conn: conn, queue: queue, confirmTimeout: confirmTimeout}
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.ch = ch
	return ch, nil
}

// Publish sends payload persistently. The broker confirmation is awaited on
// its own goroutine, which runs exactly one of the callbacks.
func (p *RabbitPublisher) Publish(ctx context.Context, key string, payload []byte, onSuccess func(Ack), onFailure func(error)) error {
	p.mu.Lock()
	ch, err := p.channel()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	p.mu.Unlock()
	if err != nil {
		return err
	}

	go func() {
		wctx, cancel := confirmContext(p.confirmTimeout)
		defer cancel()
		acked, err := dc.WaitContext(wctx)
		switch {
		case err != nil:
			onFailure(fmt.Errorf("rabbitmq: await confirm: %w", err))
		case !acked:
			onFailure(ErrNacked)
		default:
			onSuccess(Ack{Topic: p.queue, DeliveryTag: dc.DeliveryTag})
		}
	}()
	return nil
}

func confirmContext(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d)
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}

// Dial connects to the broker, retrying with backoff until ctx is done.
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logx.Errorf("rabbitmq: dial failed: %v; retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
