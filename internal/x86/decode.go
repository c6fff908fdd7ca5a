package x86

import (
	"errors"
	"fmt"
	"iter"

	"golang.org/x/arch/x86/x86asm"
)

var (
	// ErrDecode means an opcode could not be decoded.
	ErrDecode = errors.New("undecodable instruction")
	// ErrUnsupportedControlFlow means a branch, call or return falls inside
	// the bytes that would be overwritten.
	ErrUnsupportedControlFlow = errors.New("unsupported control flow in patch window")
	// ErrInsufficientBytes means the function ends before the jump fits.
	ErrInsufficientBytes = errors.New("insufficient bytes to patch")
	// ErrUnrelocatable means an instruction cannot be re-encoded at a new
	// address.
	ErrUnrelocatable = errors.New("instruction cannot be relocated")
	// ErrBitness means a mode other than 32 or 64 was requested.
	ErrBitness = errors.New("unsupported bitness")
)

const maxInstructionLen = 15

func checkBitness(bitness int) error {
	if bitness != 32 && bitness != 64 {
		return fmt.Errorf("%w: %d", ErrBitness, bitness)
	}
	return nil
}

// DecodeOne decodes the instruction at the start of code. addr is the
// address code executes from.
//
// An unrecognized opcode is returned as a one byte Invalid instruction along
// with an error wrapping ErrDecode. If code ends part way through an
// instruction the error wraps x86asm.ErrTruncated.
func DecodeOne(code []byte, addr uintptr, bitness int) (Instruction, error) {
	inst, err := x86asm.Decode(code, bitness)
	if err == nil && inst.Op != 0 {
		return newInstruction(inst, code, addr), nil
	}

	// x86asm reports an instruction cut off by the end of src as a bare
	// prefix. Only a full window proves the bytes are really invalid.
	if errors.Is(err, x86asm.ErrTruncated) || (err == nil && len(code) < maxInstructionLen) {
		return Instruction{}, fmt.Errorf("decode at %#x: %w", addr, x86asm.ErrTruncated)
	}

	bad := Instruction{
		Address: addr,
		Len:     1,
		Flow:    Invalid,
	}
	if len(code) > 0 {
		bad.Bytes = []byte{code[0]}
	}
	if err == nil {
		err = x86asm.ErrUnrecognized
	}
	return bad, fmt.Errorf("%w at %#x: %w", ErrDecode, addr, err)
}

// Decode lazily decodes code, which is assumed to start at start. Decoding
// stops after the first Invalid instruction, when an instruction would
// extend past the end of the window, or after limit bytes. A limit of zero
// or less decodes the whole slice.
func Decode(code []byte, start uintptr, bitness, limit int) iter.Seq[Instruction] {
	if limit > 0 && limit < len(code) {
		code = code[:limit]
	}

	return func(yield func(Instruction) bool) {
		for off := 0; off < len(code); {
			inst, err := DecodeOne(code[off:], start+uintptr(off), bitness)
			if err != nil && inst.Flow != Invalid {
				// Truncated
				return
			}

			if !yield(inst) || inst.Flow == Invalid {
				return
			}
			off += inst.Len
		}
	}
}
