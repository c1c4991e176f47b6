package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/lockkey"
)

// TimeoutPolicy decides what happens when a lock is not acquired in time.
type TimeoutPolicy int

const (
	// FailFast returns errno.ErrLockAcquisitionTimeout.
	FailFast TimeoutPolicy = iota
	// Fallback runs LockOptions.Fallback with the original request.
	Fallback
	// ProceedUnprotected runs the operation without the lock.
	ProceedUnprotected
)

func (p TimeoutPolicy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case Fallback:
		return "fallback"
	case ProceedUnprotected:
		return "proceed_unprotected"
	default:
		return "unknown"
	}
}

// LockOptions configure ServiceLock.
type LockOptions[Req, Resp any] struct {
	Type      distlock.LockType
	Operation string
	Keys      []string
	Bind      Binder[Req]
	WaitTime  time.Duration
	LeaseTime time.Duration
	Policy    TimeoutPolicy
	Fallback  Func[Req, Resp]
}

// ServiceLock holds a distributed lock named after the request around the
// operation. Invalid options are reported here, at registration.
func ServiceLock[Req, Resp any](d Deps, opts LockOptions[Req, Resp]) (Middleware[Req, Resp], error) {
	if opts.Operation == "" {
		return nil, errors.New("guard: service lock needs an operation name")
	}
	if opts.Policy == Fallback && opts.Fallback == nil {
		return nil, fmt.Errorf("guard: %s: fallback policy without a fallback", opts.Operation)
	}
	resolver, err := lockkey.Compile(opts.Keys...)
	if err != nil {
		return nil, fmt.Errorf("guard: %s: %w", opts.Operation, err)
	}

	return func(next Func[Req, Resp]) Func[Req, Resp] {
		return func(ctx context.Context, req Req) (Resp, error) {
			var zero Resp
			ctx = distlock.EnsureHolder(ctx)
			name := d.Namer.Resolve(lockkey.TagServiceLock, opts.Operation, resolver, bind(opts.Bind, req))

			h, err := d.Locker.TryLock(ctx, distlock.Spec{
				Type:      opts.Type,
				Name:      name,
				WaitTime:  opts.WaitTime,
				LeaseTime: opts.LeaseTime,
			})
			if err == nil {
				defer release(ctx, h)
				return next(ctx, req)
			}
			if !errors.Is(err, distlock.ErrTimeout) {
				return zero, errno.ErrLockAcquisitionFailure.Wrap(err)
			}

			switch opts.Policy {
			case Fallback:
				return opts.Fallback(ctx, req)
			case ProceedUnprotected:
				logx.WithContext(ctx).Infof("lock %s busy, %s proceeds unprotected", name, opts.Operation)
				return next(ctx, req)
			default:
				return zero, errno.ErrLockAcquisitionTimeout.WithMsg("lock %s not acquired within %s", name, opts.WaitTime)
			}
		}
	}, nil
}
