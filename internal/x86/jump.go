package x86

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	opcodeJMP   = 0xe9 // JMP rel32
	opcodeJMPrm = 0xff // JMP r/m64 (with ModRM reg=4)
	opcodeNOP   = 0x90
	opcodeINT3  = 0xcc

	// ModRM for [RIP+disp32] with reg=4 (JMP).
	modrmJMPRIP = 0<<6 | 4<<3 | 5

	rel32JumpLen    = 5  // 1 byte opcode + 4 byte offset
	absoluteJumpLen = 14 // FF 25 + 4 byte zero disp + 8 byte address

	// MaxJumpLen is the longest jump EncodeJump produces.
	MaxJumpLen = absoluteJumpLen
)

// JumpKind is the encoding of a synthesized jump.
type JumpKind uint8

const (
	// JumpRel32 is JMP rel32.
	JumpRel32 JumpKind = iota + 1
	// JumpAbsolute is JMP [RIP+0] followed by the 64-bit destination.
	JumpAbsolute
)

// Len returns the encoded size of the jump.
func (k JumpKind) Len() int {
	switch k {
	case JumpRel32:
		return rel32JumpLen
	case JumpAbsolute:
		return absoluteJumpLen
	}
	return 0
}

func (k JumpKind) String() string {
	switch k {
	case JumpRel32:
		return "rel32"
	case JumpAbsolute:
		return "absolute"
	}
	return fmt.Sprintf("JumpKind(%d)", uint8(k))
}

// SelectJump returns the shortest jump that can reach to from a jump placed
// at from. 32-bit code always uses rel32 since the offset wraps.
func SelectJump(from, to uintptr, bitness int) JumpKind {
	if bitness == 32 || rel32Reachable(from+rel32JumpLen, to) {
		return JumpRel32
	}
	return JumpAbsolute
}

func rel32Reachable(next, to uintptr) bool {
	diff := int64(to) - int64(next)
	return diff >= math.MinInt32 && diff <= math.MaxInt32
}

// EncodeJump returns the machine code for a jump located at from that lands
// on to.
func EncodeJump(from, to uintptr, kind JumpKind, bitness int) ([]byte, error) {
	if err := checkBitness(bitness); err != nil {
		return nil, err
	}

	switch kind {
	case JumpRel32:
		next := from + rel32JumpLen
		if bitness == 64 && !rel32Reachable(next, to) {
			return nil, fmt.Errorf("%w: %#x is out of rel32 range from %#x", ErrUnrelocatable, to, from)
		}

		buf := make([]byte, rel32JumpLen)
		buf[0] = opcodeJMP
		// Truncating the wrapped difference gives the right two's
		// complement offset in both modes.
		binary.LittleEndian.PutUint32(buf[1:], uint32(to-next))
		return buf, nil

	case JumpAbsolute:
		if bitness != 64 {
			return nil, fmt.Errorf("absolute jumps are only encoded for 64-bit code")
		}

		buf := make([]byte, absoluteJumpLen)
		buf[0] = opcodeJMPrm
		buf[1] = modrmJMPRIP
		// buf[2:6] is a zero displacement so the pointer immediately
		// follows the instruction.
		binary.LittleEndian.PutUint64(buf[6:], uint64(to))
		return buf, nil
	}

	return nil, fmt.Errorf("unknown jump kind %d", kind)
}

// EncodePatch returns a jump from from to to followed by NOPs up to length
// bytes, so no fragment of a partly overwritten instruction stays reachable.
func EncodePatch(from, to uintptr, kind JumpKind, bitness, length int) ([]byte, error) {
	buf, err := EncodeJump(from, to, kind, bitness)
	if err != nil {
		return nil, err
	}
	if len(buf) > length {
		return nil, fmt.Errorf("%w: %s jump needs %d bytes, region has %d", ErrInsufficientBytes, kind, len(buf), length)
	}

	for len(buf) < length {
		buf = append(buf, opcodeNOP)
	}
	return buf, nil
}
