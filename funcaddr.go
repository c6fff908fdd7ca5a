package detour

import (
	"fmt"
	"reflect"
	"unsafe"
)

// target is an entry point and, when it came from a func value, its type.
type target struct {
	addr uintptr
	typ  reflect.Type
}

// resolve accepts a func value, a uintptr or an unsafe.Pointer.
//
// Note that if a Go function has been inlined its callers never reach the
// entry point. Add a noinline directive to work around this:
//
//	//go:noinline
//	func myfunc() {
//		...
//	}
func resolve(v any) (target, error) {
	switch v := v.(type) {
	case nil:
		return target{}, fmt.Errorf("%w: nil", ErrNotFunc)
	case uintptr:
		if v == 0 {
			return target{}, fmt.Errorf("%w: zero address", ErrNotFunc)
		}
		return target{addr: v}, nil
	case unsafe.Pointer:
		if v == nil {
			return target{}, fmt.Errorf("%w: nil pointer", ErrNotFunc)
		}
		return target{addr: uintptr(v)}, nil
	}

	fnv := reflect.ValueOf(v)
	if fnv.Kind() != reflect.Func {
		return target{}, fmt.Errorf("%w, kind: %v", ErrNotFunc, fnv.Kind())
	}
	if fnv.IsNil() {
		return target{}, fmt.Errorf("%w: nil %v", ErrNotFunc, fnv.Type())
	}
	return target{addr: fnv.Pointer(), typ: fnv.Type()}, nil
}

// resolvePair resolves an original and its replacement. When both are func
// values their signatures must match.
func resolvePair(original, detour any) (target, target, error) {
	orig, err := resolve(original)
	if err != nil {
		return target{}, target{}, fmt.Errorf("original: %w", err)
	}
	repl, err := resolve(detour)
	if err != nil {
		return target{}, target{}, fmt.Errorf("detour: %w", err)
	}

	if orig.typ != nil && repl.typ != nil {
		if err := checkSignatures(orig.typ, repl.typ); err != nil {
			return target{}, target{}, err
		}
	}
	return orig, repl, nil
}
