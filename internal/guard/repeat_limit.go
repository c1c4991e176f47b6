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

// RepeatLimitOptions configure RepeatLimit. A zero Hold only rejects
// concurrent duplicates; a positive Hold also rejects repeats of a
// completed request for that long.
type RepeatLimitOptions[Req any] struct {
	Operation string
	Keys      []string
	Bind      Binder[Req]
	Hold      time.Duration
	LeaseTime time.Duration
}

// RepeatLimit rejects a request with errno.ErrDuplicateRequest while an
// identical one is running anywhere, or completed within Hold.
func RepeatLimit[Req, Resp any](d Deps, opts RepeatLimitOptions[Req]) (Middleware[Req, Resp], error) {
	if opts.Operation == "" {
		return nil, errors.New("guard: repeat limit needs an operation name")
	}
	resolver, err := lockkey.Compile(opts.Keys...)
	if err != nil {
		return nil, fmt.Errorf("guard: %s: %w", opts.Operation, err)
	}

	return func(next Func[Req, Resp]) Func[Req, Resp] {
		return func(ctx context.Context, req Req) (Resp, error) {
			var zero Resp
			ctx = distlock.EnsureHolder(ctx)
			name := d.Namer.Resolve(lockkey.TagRepeatExecuteLimit, opts.Operation, resolver, bind(opts.Bind, req))

			if seen, err := d.Flags.Exists(ctx, name); err != nil {
				return zero, errno.ErrLockAcquisitionFailure.Wrap(err)
			} else if seen {
				return zero, errno.ErrDuplicateRequest
			}

			local := d.Local.Get(name)
			defer local.Release()
			if !local.TryLock() {
				return zero, errno.ErrDuplicateRequest
			}
			defer local.Unlock()

			h, err := d.Locker.TryLock(ctx, distlock.Spec{
				Type:      distlock.Reentrant,
				Name:      name,
				LeaseTime: opts.LeaseTime,
			})
			switch {
			case errors.Is(err, distlock.ErrTimeout):
				return zero, errno.ErrDuplicateRequest
			case err != nil:
				return zero, errno.ErrLockAcquisitionFailure.Wrap(err)
			}
			defer release(ctx, h)

			// another process may have finished between the first check and
			// the lock
			if seen, err := d.Flags.Exists(ctx, name); err != nil {
				return zero, errno.ErrLockAcquisitionFailure.Wrap(err)
			} else if seen {
				return zero, errno.ErrDuplicateRequest
			}

			resp, err := next(ctx, req)
			if err == nil && opts.Hold > 0 {
				if ferr := d.Flags.Mark(context.WithoutCancel(ctx), name, opts.Hold); ferr != nil {
					logx.WithContext(ctx).Errorf("write idempotency flag %s: %v", name, ferr)
				}
			}
			return resp, err
		}
	}, nil
}
