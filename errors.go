package detour

import (
	"errors"

	"github.com/pboyd/detour/internal/execmem"
	"github.com/pboyd/detour/internal/x86"
)

var (
	// ErrDecode means the target starts with bytes that do not decode.
	ErrDecode = x86.ErrDecode
	// ErrUnsupportedControlFlow means a branch or call falls inside the bytes
	// the jump would overwrite.
	ErrUnsupportedControlFlow = x86.ErrUnsupportedControlFlow
	// ErrInsufficientBytes means the target function is too short to hold
	// the jump.
	ErrInsufficientBytes = x86.ErrInsufficientBytes
	// ErrUnrelocatable means an instruction could not be moved to the
	// trampoline without changing what it refers to.
	ErrUnrelocatable = x86.ErrUnrelocatable
	// ErrAllocation means no executable memory was available for the
	// trampoline.
	ErrAllocation = execmem.ErrAllocation

	// ErrInvalidState means an operation was called on a freed handle.
	ErrInvalidState = errors.New("invalid handle state")
	// ErrNotFunc means a value that should be a function is not one.
	ErrNotFunc = errors.New("not a function")
	// ErrSignatureMismatch means the original and detour have different
	// types.
	ErrSignatureMismatch = errors.New("function signatures do not match")
	// ErrMissingStub means the provider needs a trampoline stub function and
	// none was given.
	ErrMissingStub = errors.New("trampoline stub required")
	// ErrUnknownProvider means no provider is registered under a name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnsupportedArch means the provider cannot patch code on this
	// architecture.
	ErrUnsupportedArch = errors.New("unsupported architecture")
)
