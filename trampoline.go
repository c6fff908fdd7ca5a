package detour

import (
	"fmt"
	"reflect"
	"unsafe"
)

// funcRef is the closure word of a Go func value. The first word of a
// closure is its entry point, so a pointer to a uintptr holding an address
// is a func value that calls that address.
type funcRef struct {
	entry uintptr
}

// bindFunc points the func variable behind fnPtr at entry. If want is not
// nil the variable's type must match it. The returned ref can be cleared to
// make later calls fault instead of running freed code.
func bindFunc(fnPtr any, entry uintptr, want reflect.Type) (*funcRef, error) {
	pv := reflect.ValueOf(fnPtr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Elem().Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: need a pointer to a func variable, got %T", ErrNotFunc, fnPtr)
	}

	ft := pv.Elem().Type()
	if want != nil {
		if err := checkSignatures(want, ft); err != nil {
			return nil, err
		}
	}

	// The idea is to take the address of our machine code and convince Go
	// that it's really a function value of type ft.
	ref := &funcRef{entry: entry}
	fn := reflect.NewAt(ft, unsafe.Pointer(&ref)).Elem()
	pv.Elem().Set(fn)

	return ref, nil
}

// bindings tracks the func values handed out for one trampoline.
type bindings []*funcRef

func (b *bindings) add(ref *funcRef) {
	*b = append(*b, ref)
}

// clear zeroes every bound entry point.
func (b *bindings) clear() {
	for _, ref := range *b {
		ref.entry = 0
	}
	*b = nil
}
