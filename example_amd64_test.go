//go:build amd64

package detour_test

import (
	"errors"
	"fmt"
	"strconv"
	"unsafe"

	"github.com/pboyd/detour"
	"github.com/pboyd/detour/internal/execmem"
)

// machineCode copies code into executable memory and returns a func value
// that calls it.
func machineCode[T any](code ...byte) (T, uintptr) {
	block, err := execmem.Default.Allocate(len(code))
	if err != nil {
		panic(err)
	}
	if err := block.Write(code); err != nil {
		panic(err)
	}

	ref := new(uintptr)
	*ref = block.Addr()
	return *(*T)(unsafe.Pointer(&ref)), block.Addr()
}

func Example() {
	add, addr := machineCode[func(a, b int) int](
		0x55,             // push rbp
		0x48, 0x89, 0xe5, // mov rbp, rsp
		0x48, 0x83, 0xec, 0x20, // sub rsp, 0x20
		0x48, 0x01, 0xd8, // add rax, rbx
		0x48, 0x83, 0xc4, 0x20, // add rsp, 0x20
		0x5d, // pop rbp
		0xc3, // ret
	)
	sub, _ := machineCode[func(a, b int) int](
		0x48, 0x29, 0xd8, // sub rax, rbx
		0xc3, // ret
	)

	h, err := detour.New(add, sub)
	if err != nil {
		panic(err)
	}
	defer h.Free()

	if err := h.Apply(); err != nil {
		panic(err)
	}
	original, _ := detour.Trampoline[func(a, b int) int](h)

	fmt.Println(add(10, 3), original(10, 3), h.OriginalAddress() == addr)

	h.Undo()
	fmt.Println(add(10, 3))
	// Output:
	// 7 13 true
	// 13
}

//go:noinline
func describe(n int) string {
	return "n=" + strconv.Itoa(n)
}

func ExampleNew_goFunction() {
	h, err := detour.New(describe, func(int) string { return "detoured" })
	if err != nil {
		panic(err)
	}

	// Go functions open with a stack bounds check that branches.
	err = h.Apply()
	fmt.Println(errors.Is(err, detour.ErrUnsupportedControlFlow))
	// Output: true
}

func ExampleProviders() {
	fmt.Println(detour.Providers())
	// Output: [gohook native]
}
