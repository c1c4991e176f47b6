package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/model"
	"github.com/iliyamo/seat-ticketing/internal/queue"
)

// Submitter hands a built order to the order service and returns its order
// number. Every failure is an errno.ErrDownstreamSubmissionFailure or
// errno.ErrInterruptedWait.
type Submitter interface {
	Submit(ctx context.Context, req *model.OrderCreateRequest) (string, error)
}

// OrderClient is the synchronous order service API.
type OrderClient interface {
	Create(ctx context.Context, req model.OrderCreateRequest) (model.OrderResult, error)
}

// SyncSubmitter calls the order service and waits for its reply.
type SyncSubmitter struct {
	client OrderClient
}

func NewSyncSubmitter(client OrderClient) *SyncSubmitter {
	return &SyncSubmitter{client: client}
}

func (s *SyncSubmitter) Submit(ctx context.Context, req *model.OrderCreateRequest) (string, error) {
	res, err := s.client.Create(ctx, *req)
	if err != nil {
		return "", errno.ErrDownstreamSubmissionFailure.Wrap(err)
	}
	if res.Code != 0 {
		return "", errno.ErrDownstreamSubmissionFailure.WithMsg("order service rejected order: [%d] %s", res.Code, res.Message)
	}
	if res.OrderNumber == "" {
		return strconv.FormatInt(req.OrderNumber, 10), nil
	}
	return res.OrderNumber, nil
}

// Publisher sends a message and later reports the broker's verdict through
// exactly one of the callbacks.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte, onSuccess func(queue.Ack), onFailure func(error)) error
}

// AsyncSubmitter publishes the order to a broker and blocks until the
// broker acknowledges or rejects it, ctx is done, or wait elapses. A zero
// wait only stops on ctx.
type AsyncSubmitter struct {
	pub  Publisher
	wait time.Duration
}

func NewAsyncSubmitter(pub Publisher, wait time.Duration) *AsyncSubmitter {
	return &AsyncSubmitter{pub: pub, wait: wait}
}

func (s *AsyncSubmitter) Submit(ctx context.Context, req *model.OrderCreateRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", errno.ErrDownstreamSubmissionFailure.Wrap(err)
	}
	orderNumber := strconv.FormatInt(req.OrderNumber, 10)

	// Whichever callback fires first resolves the submission.
	done := make(chan error, 1)
	var once sync.Once
	resolve := func(err error) { once.Do(func() { done <- err }) }

	err = s.pub.Publish(ctx, orderNumber, payload,
		func(ack queue.Ack) {
			logx.WithContext(ctx).Infof("order %s published to %s (partition %d, offset %d)", orderNumber, ack.Topic, ack.Partition, ack.Offset)
			resolve(nil)
		},
		func(err error) {
			logx.WithContext(ctx).Errorf("order %s publish failed: %v", orderNumber, err)
			resolve(err)
		})
	if err != nil {
		return "", errno.ErrDownstreamSubmissionFailure.Wrap(err)
	}

	var timeout <-chan time.Time
	if s.wait > 0 {
		t := time.NewTimer(s.wait)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case err := <-done:
		if err != nil {
			return "", errno.ErrDownstreamSubmissionFailure.Wrap(err)
		}
		return orderNumber, nil
	case <-ctx.Done():
		return "", errno.ErrInterruptedWait.Wrap(ctx.Err())
	case <-timeout:
		return "", errno.ErrInterruptedWait.WithMsg("no broker acknowledgement for order %s within %s", orderNumber, s.wait)
	}
}
