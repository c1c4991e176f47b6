// Package guard wraps service operations with locking and idempotency
// middleware. Each guarded operation is composed once at startup with
// Chain; nothing is discovered at call time.
package guard

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/locallock"
	"github.com/iliyamo/seat-ticketing/internal/lockkey"
)

// Func is a guarded operation.
type Func[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Middleware decorates a Func.
type Middleware[Req, Resp any] func(next Func[Req, Resp]) Func[Req, Resp]

// Binder exposes a request as named arguments for key templates.
type Binder[Req any] func(req Req) lockkey.Args

// Chain applies mws around fn. The first middleware is the outermost.
func Chain[Req, Resp any](fn Func[Req, Resp], mws ...Middleware[Req, Resp]) Func[Req, Resp] {
	for i := len(mws) - 1; i >= 0; i-- {
		fn = mws[i](fn)
	}
	return fn
}

// Deps are the collaborators shared by all guards of a process.
type Deps struct {
	Locker distlock.Locker
	Local  *locallock.Registry
	Flags  FlagStore
	Namer  lockkey.Namer
}

func bind[Req any](b Binder[Req], req Req) lockkey.Args {
	if b == nil {
		return lockkey.Args{"req": req}
	}
	return b(req)
}

// release drops h even when ctx is already cancelled. Failures are logged.
func release(ctx context.Context, h *distlock.Handle) {
	if err := h.Release(context.WithoutCancel(ctx)); err != nil {
		logx.WithContext(ctx).Errorw("release distributed lock failed",
			logx.Field("lock", h.Name()),
			logx.Field("type", h.Type().String()),
			logx.Field("err", err.Error()))
	}
}
