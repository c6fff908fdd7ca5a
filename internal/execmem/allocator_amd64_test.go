//go:build amd64

package execmem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asFunc[T any](addr uintptr) T {
	ref := new(uintptr)
	*ref = addr
	return *(*T)(unsafe.Pointer(&ref))
}

func TestAllocator_Executable(t *testing.T) {
	a := &Allocator{}

	block, err := a.Allocate(16)
	require.NoError(t, err)
	t.Cleanup(func() { block.Free() })

	// mov eax, 42; ret
	require.NoError(t, block.Write([]byte{0xb8, 0x2a, 0x00, 0x00, 0x00, 0xc3}))

	fn := asFunc[func() int](block.Addr())
	assert.Equal(t, 42, fn())

	// mov eax, 7; ret
	require.NoError(t, Write(block.Addr(), []byte{0xb8, 0x07, 0x00, 0x00, 0x00}))
	assert.Equal(t, 7, fn())
}
