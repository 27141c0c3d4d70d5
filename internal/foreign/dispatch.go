package foreign

import (
	"fmt"
	"math"
)

// Typed dispatch helpers. Each one invokes method on obj and checks that the
// result has the kind the caller's signature expects.

func mismatch(obj Ref, method, want string, got Value) error {
	return fmt.Errorf("%w: %s.%s returned %T, want %s", ErrTypeMismatch, className(obj), method, got, want)
}

func className(obj Ref) string {
	if obj == nil {
		return "<null>"
	}
	return obj.ForeignClass()
}

func invoke(env Env, obj Ref, method string, args []Value) (Value, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: calling %s", ErrNullReference, method)
	}
	return env.Invoke(obj, method, args...)
}

// CallVoid invokes method and discards its result.
func CallVoid(env Env, obj Ref, method string, args ...Value) error {
	_, err := invoke(env, obj, method, args)
	return err
}

// CallBool invokes a method returning a boolean.
func CallBool(env Env, obj Ref, method string, args ...Value) (bool, error) {
	v, err := invoke(env, obj, method, args)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, mismatch(obj, method, "bool", v)
	}
	return b, nil
}

// CallInt invokes a method returning a 32-bit integer.
func CallInt(env Env, obj Ref, method string, args ...Value) (int32, error) {
	v, err := invoke(env, obj, method, args)
	if err != nil {
		return 0, err
	}
	n, ok := AsInt64(v)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, mismatch(obj, method, "int32", v)
	}
	return int32(n), nil
}

// CallByte invokes a method returning a byte. Signed foreign bytes are
// reinterpreted, so -1 becomes 255.
func CallByte(env Env, obj Ref, method string, args ...Value) (uint8, error) {
	v, err := invoke(env, obj, method, args)
	if err != nil {
		return 0, err
	}
	n, ok := AsInt64(v)
	if !ok || n < math.MinInt8 || n > math.MaxUint8 {
		return 0, mismatch(obj, method, "byte", v)
	}
	return uint8(n), nil
}

// CallString invokes a method returning a string that may be null. The
// boolean result is false for null.
func CallString(env Env, obj Ref, method string, args ...Value) (string, bool, error) {
	v, err := invoke(env, obj, method, args)
	if err != nil {
		return "", false, err
	}
	switch s := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return s, true, nil
	default:
		return "", false, mismatch(obj, method, "string", v)
	}
}

// CallObject invokes a method returning an object that may be null.
func CallObject(env Env, obj Ref, method string, args ...Value) (Ref, error) {
	v, err := invoke(env, obj, method, args)
	if err != nil {
		return nil, err
	}
	switch r := v.(type) {
	case nil:
		return nil, nil
	case Ref:
		return r, nil
	default:
		return nil, mismatch(obj, method, "object", v)
	}
}

// CallBytes invokes a method returning a byte array that may be null.
func CallBytes(env Env, obj Ref, method string, args ...Value) ([]byte, error) {
	v, err := invoke(env, obj, method, args)
	if err != nil {
		return nil, err
	}
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	default:
		return nil, mismatch(obj, method, "byte[]", v)
	}
}

// CallStrings invokes a method returning an array of non-null strings.
func CallStrings(env Env, obj Ref, method string, args ...Value) ([]string, error) {
	v, err := invoke(env, obj, method, args)
	if err != nil {
		return nil, err
	}
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return list, nil
	case []Value:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, mismatch(obj, method, "string[]", v)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, mismatch(obj, method, "string[]", v)
	}
}

// CallStatic invokes a static method returning an object that must not be null.
func CallStatic(env Env, class, method string, args ...Value) (Ref, error) {
	v, err := env.InvokeStatic(class, method, args...)
	if err != nil {
		return nil, err
	}
	switch r := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: %s.%s returned null", ErrNullReference, class, method)
	case Ref:
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %s.%s returned %T, want object", ErrTypeMismatch, class, method, v)
	}
}

// AsInt64 converts any integral Value to int64.
func AsInt64(v Value) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
