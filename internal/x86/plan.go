package x86

import (
	"errors"
	"fmt"
)

// PatchRegion is the run of whole instructions at the start of a function
// that will be overwritten by a jump.
type PatchRegion struct {
	Address  uintptr
	Required int

	// Instructions are the consumed instructions, in order. All of them are
	// Sequential.
	Instructions []Instruction
}

// Len returns the number of bytes consumed.
func (r PatchRegion) Len() int {
	n := 0
	for _, inst := range r.Instructions {
		n += inst.Len
	}
	return n
}

// End returns the address of the first unconsumed instruction.
func (r PatchRegion) End() uintptr {
	return r.Address + uintptr(r.Len())
}

// Bytes returns a copy of the consumed encoding.
func (r PatchRegion) Bytes() []byte {
	buf := make([]byte, 0, r.Len())
	for _, inst := range r.Instructions {
		buf = append(buf, inst.Bytes...)
	}
	return buf
}

// Plan picks the shortest run of whole instructions from the start of code
// that is at least minWidth bytes long. code must begin at address.
//
// Only Sequential instructions may be consumed. A branch or call fails with
// ErrUnsupportedControlFlow. A return, trap, or the end of code before
// minWidth bytes fails with ErrInsufficientBytes.
func Plan(code []byte, address uintptr, bitness, minWidth int) (PatchRegion, error) {
	if err := checkBitness(bitness); err != nil {
		return PatchRegion{}, err
	}
	if minWidth <= 0 {
		return PatchRegion{}, fmt.Errorf("invalid patch width %d", minWidth)
	}

	region := PatchRegion{
		Address:  address,
		Required: minWidth,
	}

	length := 0
	for inst := range Decode(code, address, bitness, 0) {
		switch inst.Flow {
		case Sequential:
		case Invalid:
			return PatchRegion{}, fmt.Errorf("%w at %#x (offset %d)", ErrDecode, inst.Address, length)
		case Return, Interrupt:
			return PatchRegion{}, fmt.Errorf("%w: function ends with %s at %#x after %d of %d bytes",
				ErrInsufficientBytes, inst.Op, inst.Address, length, minWidth)
		default:
			return PatchRegion{}, fmt.Errorf("%w: %s (%s) at %#x",
				ErrUnsupportedControlFlow, inst.Flow, inst.Op, inst.Address)
		}

		region.Instructions = append(region.Instructions, inst)
		length += inst.Len
		if length >= minWidth {
			return region, nil
		}
	}

	return PatchRegion{}, fmt.Errorf("%w: decoded %d of %d bytes at %#x",
		ErrInsufficientBytes, length, minWidth, address)
}

// IsFatal reports whether err came from planning or relocation rather than
// from the environment.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrUnsupportedControlFlow) ||
		errors.Is(err, ErrInsufficientBytes) ||
		errors.Is(err, ErrUnrelocatable)
}
