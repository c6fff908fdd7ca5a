package detour

import "fmt"

// State is the lifecycle stage of a Handle.
type State uint8

const (
	// Created handles have not read the target yet.
	Created State = iota
	// Prepared handles own a trampoline but the target is unmodified.
	Prepared
	// Applied handles have redirected the target to the detour.
	Applied
	// Freed handles have released everything and cannot be used again.
	Freed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Prepared:
		return "prepared"
	case Applied:
		return "applied"
	case Freed:
		return "freed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Handle controls a single detour. Every provider returns the same surface.
//
// A Handle does no locking of its own. Callers must not use one Handle from
// several goroutines at once.
type Handle interface {
	// OriginalAddress is the entry point of the function being detoured.
	OriginalAddress() uintptr
	// DetourAddress is the entry point of the replacement.
	DetourAddress() uintptr
	// TrampolineAddress is the entry point of the trampoline, or 0 before
	// Prepare.
	TrampolineAddress() uintptr

	State() State

	// Prepare builds the trampoline without touching the target. It is
	// idempotent.
	Prepare() error
	// Apply redirects the target to the detour, calling Prepare first if
	// needed. Applying twice is a no-op.
	Apply() error
	// Undo restores the target's original bytes. It does nothing unless
	// the handle is applied.
	Undo() error
	// Free undoes the detour if needed and releases the trampoline. The
	// handle cannot be used afterwards.
	Free() error

	// GenerateTrampoline sets fnPtr, which must point to a func variable
	// with the original's signature, to a function that runs the original
	// code.
	GenerateTrampoline(fnPtr any) error
}

// Trampoline returns a function of type T that calls the original
// implementation behind h.
func Trampoline[T any](h Handle) (T, error) {
	var fn T
	err := h.GenerateTrampoline(&fn)
	return fn, err
}

func invalidState(op string, s State) error {
	return fmt.Errorf("%w: %s on %s handle", ErrInvalidState, op, s)
}
