package detour

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/brahma-adshonor/gohook"
	"github.com/charmbracelet/log"
)

// gohookHandle delegates patching to github.com/brahma-adshonor/gohook. Both
// the original and the detour must be Go func values. The trampoline is the
// stub given with WithTrampolineStub, which gohook overwrites on Apply, so it
// only runs the original code while the handle is applied.
type gohookHandle struct {
	orig, repl target
	origFn     any
	replFn     any
	stub       reflect.Value
	log        *log.Logger

	state State
}

func newGohookHandle(original, detour any, opts ...Option) (Handle, error) {
	orig, repl, err := resolvePair(original, detour)
	if err != nil {
		return nil, err
	}
	if orig.typ == nil || repl.typ == nil {
		return nil, fmt.Errorf("%w: %s needs func values, not addresses", ErrNotFunc, GohookName)
	}

	o := newOptions(opts)
	h := &gohookHandle{
		orig:   orig,
		repl:   repl,
		origFn: original,
		replFn: detour,
		log:    o.logger.With("target", fmt.Sprintf("%#x", orig.addr), "backend", GohookName),
	}

	if o.stub != nil {
		stub, err := resolve(o.stub)
		if err != nil {
			return nil, fmt.Errorf("trampoline stub: %w", err)
		}
		if stub.typ == nil {
			return nil, fmt.Errorf("%w: trampoline stub must be a func value", ErrNotFunc)
		}
		if err := checkSignatures(orig.typ, stub.typ); err != nil {
			return nil, fmt.Errorf("trampoline stub: %w", err)
		}
		h.stub = reflect.ValueOf(o.stub)
	}

	return h, nil
}

func (h *gohookHandle) OriginalAddress() uintptr { return h.orig.addr }
func (h *gohookHandle) DetourAddress() uintptr   { return h.repl.addr }
func (h *gohookHandle) State() State             { return h.state }

func (h *gohookHandle) TrampolineAddress() uintptr {
	if h.state != Applied || !h.stub.IsValid() {
		return 0
	}
	return h.stub.Pointer()
}

func (h *gohookHandle) Prepare() error {
	switch h.state {
	case Freed:
		return invalidState("prepare", h.state)
	case Created:
		if !GohookSupported() {
			return fmt.Errorf("%w: %s backend failed its self test on %s", ErrUnsupportedArch, GohookName, runtime.GOARCH)
		}
		h.state = Prepared
	}
	return nil
}

func (h *gohookHandle) Apply() error {
	switch h.state {
	case Applied:
		return nil
	case Freed:
		return invalidState("apply", h.state)
	}
	if err := h.Prepare(); err != nil {
		return err
	}

	var stub any
	if h.stub.IsValid() {
		stub = h.stub.Interface()
	}

	err := gohook.Hook(h.origFn, h.replFn, stub)
	if err != nil {
		h.log.Error("hook failed", "err", err)
		return fmt.Errorf("gohook %#x: %w", h.orig.addr, err)
	}
	h.state = Applied
	h.log.Debug("hooked")
	return nil
}

func (h *gohookHandle) Undo() error {
	switch h.state {
	case Freed:
		return invalidState("undo", h.state)
	case Applied:
		err := gohook.UnHook(h.origFn)
		if err != nil {
			return fmt.Errorf("gohook unhook %#x: %w", h.orig.addr, err)
		}
		h.state = Prepared
		h.log.Debug("unhooked")
	}
	return nil
}

func (h *gohookHandle) Free() error {
	switch h.state {
	case Freed:
		return invalidState("free", h.state)
	case Applied:
		if err := h.Undo(); err != nil {
			return err
		}
	}
	h.state = Freed
	return nil
}

func (h *gohookHandle) GenerateTrampoline(fnPtr any) error {
	if h.state == Freed {
		return invalidState("generate trampoline", h.state)
	}
	if !h.stub.IsValid() {
		return ErrMissingStub
	}

	pv := reflect.ValueOf(fnPtr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Elem().Kind() != reflect.Func {
		return fmt.Errorf("%w: need a pointer to a func variable, got %T", ErrNotFunc, fnPtr)
	}
	if err := checkSignatures(h.orig.typ, pv.Elem().Type()); err != nil {
		return err
	}
	pv.Elem().Set(h.stub)
	return nil
}

var (
	gohookOnce      sync.Once
	gohookSupported bool

	oldToken, newToken bool
)

//go:noinline
func setOldToken() {
	oldToken = true
}

//go:noinline
func setNewToken() {
	newToken = true
}

func gohookSelfTest() bool {
	oldToken, newToken = false, false

	err := gohook.Hook(setOldToken, setNewToken, nil)
	if err != nil {
		return false
	}
	setOldToken()
	err = gohook.UnHook(setOldToken)
	if err != nil {
		return false
	}
	setOldToken()
	return oldToken && newToken
}

// GohookSupported reports whether the gohook backend works in this process.
// It hooks a pair of token functions the first time it is called.
func GohookSupported() bool {
	gohookOnce.Do(func() {
		switch runtime.GOARCH {
		case "amd64", "386":
			gohookSupported = gohookSelfTest()
		}
	})
	return gohookSupported
}
