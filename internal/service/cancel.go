package service

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/guard"
	"github.com/iliyamo/seat-ticketing/internal/model"
)

const OpCancelProgramOrder = "cancel_program_order"

// OrderCanceller is the order service cancel API.
type OrderCanceller interface {
	Cancel(ctx context.Context, orderNumber int64) (model.OrderResult, error)
}

// NewCancelHandler returns the worker action for a delayed cancel message.
// Deliveries of the same order are serialized by a service lock; one that
// cannot get the lock within wait fails and is left to redelivery. A
// rejection by the order service (the order was paid or already cancelled)
// is final and not an error.
func NewCancelHandler(d guard.Deps, client OrderCanceller, wait time.Duration) (func(ctx context.Context, msg model.DelayCancel) error, error) {
	lock, err := guard.ServiceLock[model.DelayCancel, struct{}](d, guard.LockOptions[model.DelayCancel, struct{}]{
		Type:      distlock.Reentrant,
		Operation: OpCancelProgramOrder,
		Keys:      []string{"#req.OrderNumber"},
		WaitTime:  wait,
		Policy:    guard.FailFast,
	})
	if err != nil {
		return nil, err
	}

	cancel := guard.Chain[model.DelayCancel, struct{}](func(ctx context.Context, msg model.DelayCancel) (struct{}, error) {
		res, err := client.Cancel(ctx, msg.OrderNumber)
		if err != nil {
			return struct{}{}, errno.ErrDownstreamSubmissionFailure.Wrap(err)
		}
		if res.Code != 0 {
			logx.WithContext(ctx).Infof("order %d not cancelled: [%d] %s", msg.OrderNumber, res.Code, res.Message)
			return struct{}{}, nil
		}
		logx.WithContext(ctx).Infof("order %d cancelled after %s unpaid", msg.OrderNumber, time.Since(msg.CreatedAt).Round(time.Second))
		return struct{}{}, nil
	}, lock)

	return func(ctx context.Context, msg model.DelayCancel) error {
		_, err := cancel(ctx, msg)
		return err
	}, nil
}
