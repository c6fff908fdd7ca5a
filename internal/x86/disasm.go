package x86

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// TrimPadding removes trailing INT3 bytes, which compilers use to pad
// functions to their alignment.
func TrimPadding(code []byte) []byte {
	end := len(code)
	for end > 0 && code[end-1] == opcodeINT3 {
		end--
	}
	return code[:end]
}

// Disassemble returns one line per instruction in code with its address,
// encoding and Intel syntax. Decoding stops at the first invalid instruction,
// which is still listed.
func Disassemble(code []byte, base uintptr, bitness int) (string, error) {
	if err := checkBitness(bitness); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for inst := range Decode(code, base, bitness, 0) {
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", inst.Address, hex.EncodeToString(inst.Bytes), inst.String())
	}

	return buf.String(), nil
}
