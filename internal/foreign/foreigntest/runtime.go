// Package foreigntest provides a scripted foreign runtime for tests.
//
// Objects are plain Go values whose methods are closures, so a test can
// build exactly the result shapes the bridge must handle (failed envelopes,
// null messages, wrong return kinds) and then inspect the recorded call log.
package foreigntest

import (
	"context"
	"fmt"
	"sync"

	"github.com/docbridge/docbridge/internal/foreign"
)

// Method is the body of a scripted foreign method.
type Method func(args ...foreign.Value) (foreign.Value, error)

// Object is a scripted foreign object.
type Object struct {
	Class   string
	Methods map[string]Method
}

// ForeignClass implements foreign.Ref.
func (o *Object) ForeignClass() string { return o.Class }

// NewObject returns an object of class with no methods.
func NewObject(class string) *Object {
	return &Object{Class: class, Methods: make(map[string]Method)}
}

// On registers a method and returns the object for chaining.
func (o *Object) On(name string, m Method) *Object {
	o.Methods[name] = m
	return o
}

// Returns registers a method that always returns v.
func (o *Object) Returns(name string, v foreign.Value) *Object {
	return o.On(name, func(...foreign.Value) (foreign.Value, error) { return v, nil })
}

// ByteArray is a foreign byte array.
type ByteArray struct {
	Data []byte
}

// ForeignClass implements foreign.Ref.
func (b *ByteArray) ForeignClass() string { return "byte[]" }

// Call is one recorded dispatch.
type Call struct {
	Class  string
	Method string
	Args   []foreign.Value
}

// String formats the call as Class.method.
func (c Call) String() string { return c.Class + "." + c.Method }

// Runtime is a scripted foreign.Runtime.
type Runtime struct {
	mu sync.Mutex

	constructors map[string]func() *Object
	statics      map[string]map[string]Method
	calls        []Call

	attached  int
	attaches  int
	detaches  int
	arrays    []int
	attachErr error
}

// NewRuntime returns an empty scripted runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		constructors: make(map[string]func() *Object),
		statics:      make(map[string]map[string]Method),
	}
}

// Name implements foreign.Runtime.
func (r *Runtime) Name() string { return "foreigntest" }

// DefineClass registers a constructor for class.
func (r *Runtime) DefineClass(class string, ctor func() *Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[class] = ctor
}

// DefineStatic registers a static method of class.
func (r *Runtime) DefineStatic(class, method string, m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statics[class] == nil {
		r.statics[class] = make(map[string]Method)
	}
	r.statics[class][method] = m
}

// FailAttach makes every following Attach return err.
func (r *Runtime) FailAttach(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachErr = err
}

// Attach implements foreign.Runtime.
func (r *Runtime) Attach(ctx context.Context) (foreign.Env, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attachErr != nil {
		return nil, r.attachErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.attached++
	r.attaches++
	return &Env{rt: r}, nil
}

// Detach implements foreign.Runtime.
func (r *Runtime) Detach(env foreign.Env) error {
	e, ok := env.(*Env)
	if !ok || e.rt != r {
		return fmt.Errorf("foreigntest: foreign environment %T", env)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.detached {
		return foreign.ErrDetached
	}
	e.detached = true
	r.attached--
	r.detaches++
	return nil
}

// Attached returns the number of environments currently attached.
func (r *Runtime) Attached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attached
}

// Attaches returns how many times Attach succeeded.
func (r *Runtime) Attaches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attaches
}

// Detaches returns how many times Detach succeeded.
func (r *Runtime) Detaches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detaches
}

// ArrayAllocations returns the sizes passed to NewByteArray in order.
func (r *Runtime) ArrayAllocations() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.arrays...)
}

// Calls returns the recorded dispatch log.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Methods returns the recorded dispatch log as Class.method strings.
func (r *Runtime) Methods() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// CallsTo returns the recorded calls of one method name.
func (r *Runtime) CallsTo(method string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the dispatch log.
func (r *Runtime) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Runtime) record(class, method string, args []foreign.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Class: class, Method: method, Args: args})
}

// Env is an environment attached to a scripted Runtime.
type Env struct {
	rt       *Runtime
	detached bool
}

func (e *Env) check() error {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	if e.detached {
		return foreign.ErrDetached
	}
	return nil
}

// New implements foreign.Env.
func (e *Env) New(class string) (foreign.Ref, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	e.rt.mu.Lock()
	ctor, ok := e.rt.constructors[class]
	e.rt.mu.Unlock()
	if !ok {
		return nil, foreign.NoSuchClass(class)
	}
	e.rt.record(class, "<init>", nil)
	return ctor(), nil
}

// Invoke implements foreign.Env.
func (e *Env) Invoke(obj foreign.Ref, method string, args ...foreign.Value) (foreign.Value, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: calling %s", foreign.ErrNullReference, method)
	}
	o, ok := obj.(*Object)
	if !ok {
		return nil, foreign.NoSuchMethod(obj.ForeignClass(), method)
	}
	m, ok := o.Methods[method]
	if !ok {
		return nil, foreign.NoSuchMethod(o.Class, method)
	}
	e.rt.record(o.Class, method, args)
	return m(args...)
}

// InvokeStatic implements foreign.Env.
func (e *Env) InvokeStatic(class, method string, args ...foreign.Value) (foreign.Value, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	e.rt.mu.Lock()
	methods, ok := e.rt.statics[class]
	e.rt.mu.Unlock()
	if !ok {
		return nil, foreign.NoSuchClass(class)
	}
	m, ok := methods[method]
	if !ok {
		return nil, foreign.NoSuchMethod(class, method)
	}
	e.rt.record(class, method, args)
	return m(args...)
}

// NewByteArray implements foreign.Env.
func (e *Env) NewByteArray(size int) (foreign.Ref, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	e.rt.mu.Lock()
	e.rt.arrays = append(e.rt.arrays, size)
	e.rt.mu.Unlock()
	return &ByteArray{Data: make([]byte, size)}, nil
}

// CopyByteArray implements foreign.Env.
func (e *Env) CopyByteArray(arr foreign.Ref, dst []byte) (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	b, ok := arr.(*ByteArray)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a byte array", foreign.ErrTypeMismatch, arr.ForeignClass())
	}
	return copy(dst, b.Data), nil
}
