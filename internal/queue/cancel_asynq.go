package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/iliyamo/seat-ticketing/internal/model"
)

// AsynqCancelScheduler schedules cancel tasks in Redis through asynq.
type AsynqCancelScheduler struct {
	client *asynq.Client
	queue  string
}

func NewAsynqCancelScheduler(client *asynq.Client, queue string) *AsynqCancelScheduler {
	if queue == "" {
		queue = "default"
	}
	return &AsynqCancelScheduler{client: client, queue: queue}
}

// NewCancelTask builds the task for msg. The order number doubles as the
// task id so a repeated schedule of the same order is rejected by asynq.
func NewCancelTask(msg model.DelayCancel) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderCancel, payload, asynq.TaskID(fmt.Sprintf("order-cancel-%d", msg.OrderNumber))), nil
}

func (s *AsynqCancelScheduler) Schedule(ctx context.Context, msg model.DelayCancel, delay time.Duration) error {
	task, err := NewCancelTask(msg)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task, asynq.ProcessIn(delay), asynq.Queue(s.queue))
	return err
}

// NewCancelMux registers the cancel handler for asynq workers.
func NewCancelMux(handle CancelHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskOrderCancel, func(ctx context.Context, t *asynq.Task) error {
		err := handleDelivery(ctx, t.Payload(), handle)
		if err != nil && isPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	})
	return mux
}
