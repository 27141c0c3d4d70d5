// Package jsrt is the production foreign runtime: a goja JavaScript VM
// hosting the document parsing bundle.
//
// The bundle registers every class the bridge reaches by name in a global
// registry. Parsing primitives that need native code (PDF text, OCR, zip
// containers, charset encoders) are provided to the bundle as host
// functions. A goja VM is single threaded, so every dispatch holds the
// runtime mutex; attachments themselves are cheap and may nest.
package jsrt

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/pkg/utils"
)

//go:embed runtime.js
var defaultBundle string

// registryName is the global the bundle stores its classes in.
const registryName = "classes"

// Option configures a Runtime.
type Option func(*options)

type options struct {
	bundle     string
	bundleName string
	logger     *utils.StructuredLogger
	ocr        bool
}

// WithBundle replaces the built-in parsing bundle with src.
func WithBundle(name, src string) Option {
	return func(o *options) {
		o.bundle = src
		o.bundleName = name
	}
}

// WithBundleFile loads the parsing bundle from path.
func WithBundleFile(path string) Option {
	return func(o *options) {
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			o.bundleName = path
			o.bundle = fmt.Sprintf("throw new Error(%q);", "cannot read bundle: "+err.Error())
			return
		}
		o.bundle = string(data)
		o.bundleName = path
	}
}

// WithLogger sets the logger used by the bundle's log host function.
func WithLogger(logger *utils.StructuredLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOCR enables the OCR host functions when the build includes them.
func WithOCR(enabled bool) Option {
	return func(o *options) { o.ocr = enabled }
}

// Runtime is a goja VM with the parsing bundle loaded.
type Runtime struct {
	mu        sync.Mutex
	vm        *goja.Runtime
	registry  *goja.Object
	uint8Ctor *goja.Object
	logger    *utils.StructuredLogger

	attached atomic.Int64
}

// New creates a VM, installs the host functions and evaluates the bundle.
func New(opts ...Option) (*Runtime, error) {
	o := options{
		bundle:     defaultBundle,
		bundleName: "runtime.js",
		logger:     utils.NopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{
		vm:     goja.New(),
		logger: o.logger.WithComponent("jsrt"),
	}

	ctor, ok := r.vm.Get("Uint8Array").(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("jsrt: Uint8Array is not available")
	}
	r.uint8Ctor = ctor

	if err := r.installHost(o.ocr && ocrAvailable); err != nil {
		return nil, fmt.Errorf("jsrt: installing host functions: %w", err)
	}
	if _, err := r.vm.RunScript(o.bundleName, o.bundle); err != nil {
		return nil, fmt.Errorf("jsrt: evaluating %s: %w", o.bundleName, r.convertError(err))
	}

	registry, ok := r.vm.Get(registryName).(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("jsrt: %s does not define the %q registry", o.bundleName, registryName)
	}
	r.registry = registry
	return r, nil
}

// Name implements foreign.Runtime.
func (r *Runtime) Name() string { return "goja" }

// Attached returns the number of environments currently attached.
func (r *Runtime) Attached() int64 { return r.attached.Load() }

// Attach implements foreign.Runtime.
func (r *Runtime) Attach(ctx context.Context) (foreign.Env, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.attached.Add(1)
	return &env{rt: r, ctx: ctx}, nil
}

// Detach implements foreign.Runtime.
func (r *Runtime) Detach(e foreign.Env) error {
	ev, ok := e.(*env)
	if !ok || ev.rt != r {
		return fmt.Errorf("jsrt: foreign environment %T", e)
	}
	if !ev.detached.CompareAndSwap(false, true) {
		return foreign.ErrDetached
	}
	r.attached.Add(-1)
	return nil
}

// env is an attachment. Its context interrupts dispatches in flight.
type env struct {
	rt       *Runtime
	ctx      context.Context
	detached atomic.Bool
}

// dispatch runs fn with the VM locked and interrupts it when the
// attachment's context ends.
func (e *env) dispatch(fn func(vm *goja.Runtime) (foreign.Value, error)) (result foreign.Value, err error) {
	if e.detached.Load() {
		return nil, foreign.ErrDetached
	}
	if err := e.ctx.Err(); err != nil {
		return nil, err
	}

	r := e.rt
	r.mu.Lock()
	defer r.mu.Unlock()

	if done := e.ctx.Done(); done != nil {
		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-done:
				r.vm.Interrupt(e.ctx.Err())
			case <-stop:
			}
		}()
		defer func() {
			close(stop)
			wg.Wait()
			r.vm.ClearInterrupt()
		}()
	}

	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = &foreign.Exception{Class: "GoPanic", Message: fmt.Sprint(p)}
		}
	}()

	result, err = fn(r.vm)
	if err != nil {
		return nil, r.convertError(err)
	}
	return result, nil
}

// New implements foreign.Env.
func (e *env) New(class string) (foreign.Ref, error) {
	v, err := e.dispatch(func(vm *goja.Runtime) (foreign.Value, error) {
		ctor := e.rt.registry.Get(class)
		if !defined(ctor) {
			return nil, foreign.NoSuchClass(class)
		}
		if _, ok := goja.AssertConstructor(ctor); !ok {
			return nil, foreign.NoSuchClass(class)
		}
		obj, err := vm.New(ctor)
		if err != nil {
			return nil, err
		}
		return e.rt.wrap(obj), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(foreign.Ref), nil
}

// Invoke implements foreign.Env.
func (e *env) Invoke(obj foreign.Ref, method string, args ...foreign.Value) (foreign.Value, error) {
	target, ok := obj.(*object)
	if !ok || target.rt != e.rt {
		return nil, fmt.Errorf("%w: %T is not a goja object", foreign.ErrTypeMismatch, obj)
	}
	return e.dispatch(func(vm *goja.Runtime) (foreign.Value, error) {
		fn, ok := goja.AssertFunction(target.obj.Get(method))
		if !ok {
			return nil, foreign.NoSuchMethod(target.class, method)
		}
		return e.call(fn, target.obj, args)
	})
}

// InvokeStatic implements foreign.Env.
func (e *env) InvokeStatic(class, method string, args ...foreign.Value) (foreign.Value, error) {
	return e.dispatch(func(vm *goja.Runtime) (foreign.Value, error) {
		holder, ok := e.rt.registry.Get(class).(*goja.Object)
		if !ok {
			return nil, foreign.NoSuchClass(class)
		}
		fn, ok := goja.AssertFunction(holder.Get(method))
		if !ok {
			return nil, foreign.NoSuchMethod(class, method)
		}
		return e.call(fn, holder, args)
	})
}

func (e *env) call(fn goja.Callable, this goja.Value, args []foreign.Value) (foreign.Value, error) {
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		v, err := e.rt.toJS(a)
		if err != nil {
			return nil, err
		}
		jsArgs[i] = v
	}
	res, err := fn(this, jsArgs...)
	if err != nil {
		return nil, err
	}
	return e.rt.fromJS(res), nil
}

// NewByteArray implements foreign.Env.
func (e *env) NewByteArray(size int) (foreign.Ref, error) {
	if size < 0 {
		return nil, fmt.Errorf("jsrt: negative byte array size %d", size)
	}
	v, err := e.dispatch(func(vm *goja.Runtime) (foreign.Value, error) {
		return e.rt.newUint8Array(make([]byte, size))
	})
	if err != nil {
		return nil, err
	}
	return v.(foreign.Ref), nil
}

// CopyByteArray implements foreign.Env.
func (e *env) CopyByteArray(arr foreign.Ref, dst []byte) (int, error) {
	o, ok := arr.(*object)
	if !ok || o.data == nil {
		return 0, fmt.Errorf("%w: %s is not a byte array", foreign.ErrTypeMismatch, classOf(arr))
	}
	v, err := e.dispatch(func(*goja.Runtime) (foreign.Value, error) {
		return copy(dst, o.data), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func classOf(ref foreign.Ref) string {
	if ref == nil {
		return "<null>"
	}
	return ref.ForeignClass()
}

// convertError maps goja failures onto the foreign error vocabulary.
func (r *Runtime) convertError(err error) error {
	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		if cause := interrupted.Unwrap(); cause != nil {
			return cause
		}
		return context.Canceled
	}

	var exc *goja.Exception
	if stderrors.As(err, &exc) {
		out := &foreign.Exception{Class: "Error", Message: exc.Error()}
		if obj, ok := exc.Value().(*goja.Object); ok {
			if name := obj.Get("name"); defined(name) {
				out.Class = name.String()
			}
			if msg := obj.Get("message"); defined(msg) {
				out.Message = msg.String()
			}
		}
		return out
	}
	return err
}
