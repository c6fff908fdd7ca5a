// Package x86 decodes, plans and relocates x86 and x86-64 machine code for
// function detours. Nothing in this package touches process memory: every
// function works on byte slices together with the address the bytes are
// assumed to execute from.
package x86

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Flow classifies how an instruction transfers control.
type Flow uint8

const (
	Sequential Flow = iota
	UnconditionalBranch
	ConditionalBranch
	Call
	IndirectBranch
	Return
	Interrupt
	Invalid
)

var flowNames = [...]string{
	Sequential:          "sequential",
	UnconditionalBranch: "unconditional branch",
	ConditionalBranch:   "conditional branch",
	Call:                "call",
	IndirectBranch:      "indirect branch",
	Return:              "return",
	Interrupt:           "interrupt",
	Invalid:             "invalid",
}

func (f Flow) String() string {
	if int(f) < len(flowNames) {
		return flowNames[f]
	}
	return fmt.Sprintf("Flow(%d)", uint8(f))
}

// Terminates reports whether execution never falls through to the next
// instruction.
func (f Flow) Terminates() bool {
	switch f {
	case UnconditionalBranch, IndirectBranch, Return:
		return true
	}
	return false
}

// Mode is the most position-sensitive addressing mode used by an
// instruction's operands.
type Mode uint8

const (
	ModeNone Mode = iota
	// Register and immediate operands only.
	ModeDirect
	// A memory operand that does not depend on the instruction pointer.
	ModeMemory
	// A memory operand relative to RIP/EIP.
	ModeIPRelative
	// A branch target relative to the next instruction.
	ModeBranchRelative
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeDirect:
		return "direct"
	case ModeMemory:
		return "memory"
	case ModeIPRelative:
		return "ip-relative"
	case ModeBranchRelative:
		return "branch-relative"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Instruction is a single decoded machine instruction.
type Instruction struct {
	Address uintptr
	Len     int
	// Bytes is a copy of the encoding, so it stays valid after the source
	// memory is patched.
	Bytes []byte
	Flow  Flow
	Mode  Mode
	Op    x86asm.Op

	// PCRelOff and PCRel locate the IP-relative field in Bytes. PCRel is
	// zero when there is none.
	PCRelOff int
	PCRel    int

	inst x86asm.Inst
}

// End returns the address of the following instruction.
func (i Instruction) End() uintptr {
	return i.Address + uintptr(i.Len)
}

// Target returns the absolute address referenced by an IP-relative memory
// operand or relative branch.
func (i Instruction) Target() (uintptr, bool) {
	if i.PCRel == 0 || i.PCRelOff+i.PCRel > len(i.Bytes) {
		return 0, false
	}

	field := i.Bytes[i.PCRelOff : i.PCRelOff+i.PCRel]

	var disp int64
	switch i.PCRel {
	case 1:
		disp = int64(int8(field[0]))
	case 2:
		disp = int64(int16(binary.LittleEndian.Uint16(field)))
	case 4:
		disp = int64(int32(binary.LittleEndian.Uint32(field)))
	default:
		return 0, false
	}

	target := uintptr(int64(i.End()) + disp)
	if i.inst.Mode == 32 {
		target &= 0xffffffff
	}
	return target, true
}

func (i Instruction) String() string {
	if i.Flow == Invalid {
		return fmt.Sprintf("(bad) %#x", i.Bytes)
	}
	return x86asm.IntelSyntax(i.inst, uint64(i.Address), nil)
}

func newInstruction(inst x86asm.Inst, code []byte, addr uintptr) Instruction {
	bytes := make([]byte, inst.Len)
	copy(bytes, code[:inst.Len])

	return Instruction{
		Address:  addr,
		Len:      inst.Len,
		Bytes:    bytes,
		Flow:     classifyFlow(inst),
		Mode:     classifyMode(inst),
		Op:       inst.Op,
		PCRelOff: inst.PCRelOff,
		PCRel:    inst.PCRel,
		inst:     inst,
	}
}

func classifyFlow(inst x86asm.Inst) Flow {
	switch inst.Op {
	case 0:
		return Invalid

	case x86asm.JMP:
		if _, ok := inst.Args[0].(x86asm.Rel); ok {
			return UnconditionalBranch
		}
		return IndirectBranch
	case x86asm.LJMP:
		return IndirectBranch

	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JNE,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE,
		x86asm.JO, x86asm.JNO, x86asm.JP, x86asm.JNP, x86asm.JS, x86asm.JNS,
		x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE, x86asm.XBEGIN:
		return ConditionalBranch

	case x86asm.CALL, x86asm.LCALL:
		return Call

	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ,
		x86asm.SYSEXIT, x86asm.SYSRET:
		return Return

	case x86asm.INT, x86asm.INTO, x86asm.ICEBP, x86asm.HLT,
		x86asm.UD0, x86asm.UD1, x86asm.UD2,
		x86asm.SYSCALL, x86asm.SYSENTER:
		return Interrupt
	}

	return Sequential
}

func classifyMode(inst x86asm.Inst) Mode {
	mode := ModeNone
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}

		var m Mode
		switch a := arg.(type) {
		case x86asm.Rel:
			m = ModeBranchRelative
		case x86asm.Mem:
			if a.Base == x86asm.RIP || a.Base == x86asm.EIP {
				m = ModeIPRelative
			} else {
				m = ModeMemory
			}
		default:
			m = ModeDirect
		}

		// IP-relative memory outranks a branch target: both need fixing,
		// but only memory operands are ever relocated.
		if rank(m) > rank(mode) {
			mode = m
		}
	}
	return mode
}

func rank(m Mode) int {
	switch m {
	case ModeIPRelative:
		return 4
	case ModeBranchRelative:
		return 3
	case ModeMemory:
		return 2
	case ModeDirect:
		return 1
	}
	return 0
}
