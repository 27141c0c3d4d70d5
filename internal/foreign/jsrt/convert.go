package jsrt

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"

	"github.com/docbridge/docbridge/internal/foreign"
)

// classProperty is the prototype property the bundle stamps with the
// registered class name.
const classProperty = "__class"

// object is a reference to a JS object. data is set for byte arrays the
// bridge allocated; it aliases the array's backing store.
type object struct {
	rt    *Runtime
	obj   *goja.Object
	class string
	data  []byte
}

// ForeignClass implements foreign.Ref.
func (o *object) ForeignClass() string { return o.class }

func (r *Runtime) wrap(obj *goja.Object) *object {
	class := obj.ClassName()
	if v := obj.Get(classProperty); defined(v) {
		class = v.String()
	}
	return &object{rt: r, obj: obj, class: class}
}

func defined(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

// newUint8Array returns a Uint8Array whose buffer is data itself.
func (r *Runtime) newUint8Array(data []byte) (*object, error) {
	buf := r.vm.NewArrayBuffer(data)
	arr, err := r.vm.New(r.uint8Ctor, r.vm.ToValue(buf))
	if err != nil {
		return nil, err
	}
	return &object{rt: r, obj: arr, class: "byte[]", data: data}, nil
}

func (r *Runtime) isUint8Array(obj *goja.Object) bool {
	return r.vm.InstanceOf(obj, r.uint8Ctor)
}

// bytesOf copies the visible window of a Uint8Array.
func (r *Runtime) bytesOf(obj *goja.Object) []byte {
	buf, ok := obj.Get("buffer").Export().(goja.ArrayBuffer)
	if !ok {
		return nil
	}
	off := obj.Get("byteOffset").ToInteger()
	n := obj.Get("byteLength").ToInteger()
	backing := buf.Bytes()
	if off < 0 || n < 0 || off+n > int64(len(backing)) {
		return nil
	}
	out := make([]byte, n)
	copy(out, backing[off:off+n])
	return out
}

// toJS converts an argument crossing into the VM.
func (r *Runtime) toJS(v foreign.Value) (goja.Value, error) {
	switch x := v.(type) {
	case nil:
		return goja.Null(), nil
	case *object:
		if x.rt != r {
			return nil, fmt.Errorf("%w: object belongs to another runtime", foreign.ErrTypeMismatch)
		}
		return x.obj, nil
	case foreign.Ref:
		return nil, fmt.Errorf("%w: %T is not a goja object", foreign.ErrTypeMismatch, v)
	case []byte:
		arr, err := r.newUint8Array(append([]byte(nil), x...))
		if err != nil {
			return nil, err
		}
		return arr.obj, nil
	case []foreign.Value:
		items := make([]interface{}, len(x))
		for i, item := range x {
			jv, err := r.toJS(item)
			if err != nil {
				return nil, err
			}
			items[i] = jv
		}
		return r.vm.NewArray(items...), nil
	case []string:
		items := make([]interface{}, len(x))
		for i, s := range x {
			items[i] = s
		}
		return r.vm.NewArray(items...), nil
	case bool, int32, int64, float64, string:
		return r.vm.ToValue(x), nil
	case int:
		return r.vm.ToValue(int64(x)), nil
	default:
		return nil, fmt.Errorf("%w: cannot pass %T", foreign.ErrTypeMismatch, v)
	}
}

// fromJS converts a result leaving the VM. Byte arrays are copied out;
// plain arrays become []Value; every other object stays a reference.
func (r *Runtime) fromJS(v goja.Value) foreign.Value {
	if !defined(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		switch x := v.Export().(type) {
		case int64:
			return x
		case float64:
			if x == float64(int64(x)) {
				return int64(x)
			}
			return x
		default:
			return x
		}
	}
	if r.isUint8Array(obj) {
		return r.bytesOf(obj)
	}
	if obj.ClassName() == "Array" {
		n := obj.Get("length").ToInteger()
		items := make([]foreign.Value, n)
		for i := int64(0); i < n; i++ {
			items[i] = r.fromJS(obj.Get(strconv.FormatInt(i, 10)))
		}
		return items
	}
	return r.wrap(obj)
}
