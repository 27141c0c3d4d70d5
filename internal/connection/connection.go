// Package connection attaches callers to a foreign runtime.
//
// An attachment is carried in a context.Context. Acquiring again on a
// context that already holds an attachment to the same runtime reuses it, so
// helpers can acquire unconditionally without a second attach. The
// attachment is detached when the last holder releases.
package connection

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/google/uuid"

	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/pkg/errors"
)

type ctxKey struct {
	rt foreign.Runtime
}

type attachment struct {
	id  string
	rt  foreign.Runtime
	env foreign.Env

	mu   sync.Mutex
	refs int
}

// Handle is one holder's claim on an attachment.
type Handle struct {
	a    *attachment
	once sync.Once
	err  error
}

// Acquire attaches to rt, or joins the attachment already carried by ctx.
// The returned context carries the attachment for nested calls. Every
// successful Acquire must be paired with Handle.Release.
func Acquire(ctx context.Context, rt foreign.Runtime) (context.Context, *Handle, error) {
	if rt == nil {
		return ctx, nil, errors.NewError(errors.ErrCodeRuntimeSetup, "no foreign runtime configured").
			WithComponent("connection").
			WithOperation("acquire")
	}

	key := ctxKey{rt: rt}
	if a, ok := ctx.Value(key).(*attachment); ok && a.join() {
		return ctx, &Handle{a: a}, nil
	}

	env, err := rt.Attach(ctx)
	if err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return ctx, nil, foreign.Wrap("connection", "attach", err)
		}
		return ctx, nil, errors.NewError(errors.ErrCodeAttachFailed, "failed to attach to "+rt.Name()).
			WithComponent("connection").
			WithOperation("attach").
			WithCause(err)
	}

	a := &attachment{
		id:   uuid.NewString(),
		rt:   rt,
		env:  env,
		refs: 1,
	}
	return context.WithValue(ctx, key, a), &Handle{a: a}, nil
}

// join adds a holder unless the attachment has already been detached.
func (a *attachment) join() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs == 0 {
		return false
	}
	a.refs++
	return true
}

func (a *attachment) leave() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs--
	if a.refs > 0 {
		return nil
	}
	if err := a.rt.Detach(a.env); err != nil {
		return errors.NewError(errors.ErrCodeAttachFailed, "failed to detach from "+a.rt.Name()).
			WithComponent("connection").
			WithOperation("detach").
			WithRequestID(a.id).
			WithCause(err)
	}
	return nil
}

// Env returns the attached environment.
func (h *Handle) Env() foreign.Env { return h.a.env }

// ID identifies the attachment in logs. Nested holders share the ID.
func (h *Handle) ID() string { return h.a.id }

// Depth returns the number of holders currently sharing the attachment.
func (h *Handle) Depth() int {
	h.a.mu.Lock()
	defer h.a.mu.Unlock()
	return h.a.refs
}

// Release gives up this holder's claim. The runtime is detached when the
// outermost holder releases. Further calls return the first result.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.err = h.a.leave()
	})
	return h.err
}

// FromContext returns the environment attached to rt in ctx, if any.
func FromContext(ctx context.Context, rt foreign.Runtime) (foreign.Env, bool) {
	a, ok := ctx.Value(ctxKey{rt: rt}).(*attachment)
	if !ok {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs == 0 {
		return nil, false
	}
	return a.env, true
}

// Do runs fn inside an attachment to rt and releases it afterwards. A
// release failure is reported only when fn succeeded.
func Do(ctx context.Context, rt foreign.Runtime, fn func(ctx context.Context, h *Handle) error) (err error) {
	ctx, h, err := Acquire(ctx, rt)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := h.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(ctx, h)
}
