// Package foreign defines the capability the bridge needs from a foreign
// document runtime: attaching to it and dispatching calls by name.
//
// A runtime is reached only through named classes and methods. Arguments and
// results cross the boundary as Values; objects that stay on the foreign side
// are referenced through opaque Refs. Everything above this package (config
// marshaling, result unmarshaling, the streaming reader) is written against
// these interfaces and is tested against the scripted runtime in
// foreigntest.
package foreign

import (
	"context"
	"errors"
	"fmt"
)

// Ref is a handle to an object owned by the foreign runtime. It is only
// meaningful to the runtime that produced it.
type Ref interface {
	ForeignClass() string
}

// Value is an argument or result crossing the boundary. The kinds that may
// cross are nil, bool, int32, int64, float64, string, []byte, []Value and Ref.
// A nil Value is the foreign null.
type Value = interface{}

// Runtime is a foreign runtime that callers attach to before dispatching.
type Runtime interface {
	// Name identifies the runtime in logs and errors.
	Name() string
	// Attach returns an environment bound to ctx. Attach may be called
	// again while an earlier environment is still attached.
	Attach(ctx context.Context) (Env, error)
	// Detach releases an environment returned by Attach.
	Detach(env Env) error
}

// Env dispatches calls into an attached runtime.
type Env interface {
	// New constructs an instance of class with its no-argument constructor.
	New(class string) (Ref, error)
	// Invoke calls method on obj.
	Invoke(obj Ref, method string, args ...Value) (Value, error)
	// InvokeStatic calls a static method of class.
	InvokeStatic(class, method string, args ...Value) (Value, error)
	// NewByteArray allocates a foreign byte array of size bytes.
	NewByteArray(size int) (Ref, error)
	// CopyByteArray copies the leading bytes of arr into dst and returns
	// how many were copied.
	CopyByteArray(arr Ref, dst []byte) (int, error)
}

var (
	// ErrNoSuchClass reports a class the runtime does not define.
	ErrNoSuchClass = errors.New("no such class")
	// ErrNoSuchMethod reports a method the target does not define.
	ErrNoSuchMethod = errors.New("no such method")
	// ErrTypeMismatch reports a result of an unexpected kind.
	ErrTypeMismatch = errors.New("unexpected result type")
	// ErrNullReference reports a null where an object was required.
	ErrNullReference = errors.New("null reference")
	// ErrDetached reports use of an environment after Detach.
	ErrDetached = errors.New("environment detached")
)

// Exception is an error thrown inside the runtime and not caught there.
type Exception struct {
	Class   string
	Message string
}

func (e *Exception) Error() string {
	if e.Class == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// NoSuchClass returns an ErrNoSuchClass error naming class.
func NoSuchClass(class string) error {
	return fmt.Errorf("%w: %s", ErrNoSuchClass, class)
}

// NoSuchMethod returns an ErrNoSuchMethod error naming class and method.
func NoSuchMethod(class, method string) error {
	return fmt.Errorf("%w: %s.%s", ErrNoSuchMethod, class, method)
}
