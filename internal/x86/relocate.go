package x86

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Trampoline is relocated code that runs the consumed instructions of a
// PatchRegion and then continues in the original function.
type Trampoline struct {
	Base uintptr
	Code []byte

	// Relocated are the consumed instructions decoded at their new
	// addresses.
	Relocated []Instruction

	// ContinuationOffset is the offset of the jump back into the original
	// function, or -1 when the last instruction never falls through.
	ContinuationOffset int
	Continuation       JumpKind
}

// Entry returns the address callers jump to.
func (t Trampoline) Entry() uintptr {
	return t.Base
}

// MaxTrampolineLen returns the largest trampoline Relocate can build for
// region.
func MaxTrampolineLen(region PatchRegion) int {
	return region.Len() + MaxJumpLen
}

// Relocate builds the trampoline for region assuming it will execute from
// base.
//
// IP-relative memory operands are re-encoded for the new address. Any
// operand that cannot be re-encoded fails with ErrUnrelocatable instead of
// being copied unchanged.
func Relocate(region PatchRegion, base uintptr, bitness int) (Trampoline, error) {
	if err := checkBitness(bitness); err != nil {
		return Trampoline{}, err
	}
	if len(region.Instructions) == 0 {
		return Trampoline{}, errors.New("empty patch region")
	}

	tramp := Trampoline{
		Base:               base,
		ContinuationOffset: -1,
	}

	code := make([]byte, 0, MaxTrampolineLen(region))

	for _, inst := range region.Instructions {
		dest := base + uintptr(len(code))

		buf := make([]byte, inst.Len)
		copy(buf, inst.Bytes)

		switch inst.Mode {
		case ModeIPRelative:
			err := fixIPRelative(inst, dest, buf)
			if err != nil {
				return Trampoline{}, err
			}
		case ModeBranchRelative:
			// Plan never hands these over.
			return Trampoline{}, fmt.Errorf("%w: %s at %#x", ErrUnsupportedControlFlow, inst.Op, inst.Address)
		}

		relocated, err := DecodeOne(buf, dest, bitness)
		if err != nil {
			return Trampoline{}, fmt.Errorf("relocated instruction at %#x: %w", dest, err)
		}
		if relocated.Len != inst.Len {
			return Trampoline{}, fmt.Errorf("%w: %s changed length at %#x", ErrUnrelocatable, inst.Op, dest)
		}

		tramp.Relocated = append(tramp.Relocated, relocated)
		code = append(code, buf...)
	}

	last := region.Instructions[len(region.Instructions)-1]
	if !last.Flow.Terminates() {
		from := base + uintptr(len(code))
		kind := SelectJump(from, region.End(), bitness)

		jmp, err := EncodeJump(from, region.End(), kind, bitness)
		if err != nil {
			return Trampoline{}, err
		}

		tramp.ContinuationOffset = len(code)
		tramp.Continuation = kind
		code = append(code, jmp...)
	}

	tramp.Code = code
	return tramp, nil
}

// fixIPRelative rewrites the displacement in buf, a copy of inst, so it
// refers to the same absolute address when executed from dest.
func fixIPRelative(inst Instruction, dest uintptr, buf []byte) error {
	target, ok := inst.Target()
	if !ok || inst.PCRel != 4 {
		return fmt.Errorf("%w: %s at %#x has a %d byte IP-relative field", ErrUnrelocatable, inst.Op, inst.Address, inst.PCRel)
	}

	disp := int64(target) - int64(dest+uintptr(inst.Len))
	if disp < math.MinInt32 || disp > math.MaxInt32 {
		return fmt.Errorf("%w: %s at %#x references %#x, out of rel32 range from %#x",
			ErrUnrelocatable, inst.Op, inst.Address, target, dest)
	}

	binary.LittleEndian.PutUint32(buf[inst.PCRelOff:], uint32(int32(disp)))
	return nil
}
