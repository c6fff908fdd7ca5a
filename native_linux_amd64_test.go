package detour

import (
	"encoding/binary"
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/pboyd/detour/internal/execmem"
	"github.com/pboyd/detour/internal/x86"
)

// highPage maps a read/write/exec page outside the low 2GiB, where the
// arena lives.
func highPage(t *testing.T) []byte {
	t.Helper()

	page, err := unix.Mmap(-1, 0, os.Getpagesize(),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Munmap(page) })

	for i := range page {
		page[i] = 0xcc
	}

	if addrOf(page) < 1<<32 {
		t.Skipf("mmap returned low address %#x", addrOf(page))
	}
	return page
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func TestNative_AbsoluteJump(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	page := highPage(t)
	copy(page, subtract)
	repl := addrOf(page)

	orig := fixture(t, addPrologue...)
	add := asFunc[func(a, b int) int](t, orig)
	require.Greater(distance(orig, repl), uintptr(1<<31))

	h, err := New(orig, repl)
	require.NoError(err)
	t.Cleanup(func() { h.Free() })

	require.NoError(h.Apply())

	nh := h.(*nativeHandle)
	require.Equal(x86.JumpAbsolute, nh.kind)
	require.Equal(15, nh.region.Len())

	// jmp [rip+0] followed by the detour's address and one NOP.
	patched := snapshot(orig, nh.region.Len())
	inst, err := x86.DecodeOne(patched, orig, 64)
	require.NoError(err)
	assert.Equal(x86.IndirectBranch, inst.Flow)
	assert.Equal([]byte{0xff, 0x25, 0x00, 0x00, 0x00, 0x00}, inst.Bytes)
	assert.Equal(uint64(repl), binary.LittleEndian.Uint64(patched[6:14]))
	assert.Equal([]byte{0x90}, patched[14:])
	assert.Equal(addPrologue[15:], execmem.View(orig+15, len(addPrologue)-15))

	assert.Equal(3, add(5, 2))

	tramp, err := Trampoline[func(a, b int) int](h)
	require.NoError(err)
	assert.Equal(7, tramp(5, 2))

	require.NoError(h.Undo())
	assert.Equal(addPrologue, snapshot(orig, len(addPrologue)))
	require.NoError(h.Apply())
	assert.Equal(3, add(5, 2))

	require.NoError(h.Free())
	assert.Equal(addPrologue, snapshot(orig, len(addPrologue)))
	assert.Equal(7, add(5, 2))
}

func TestNative_NearbyTrampoline(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	page := highPage(t)

	// mov rax, [rip+8]; add rax, rbx; add rax, 0; ret; dq 100
	code := []byte{
		0x48, 0x8b, 0x05, 0x08, 0x00, 0x00, 0x00,
		0x48, 0x01, 0xd8,
		0x48, 0x83, 0xc0, 0x00,
		0xc3,
	}
	code = binary.LittleEndian.AppendUint64(code, 100)
	copy(page, code)
	copy(page[256:], subtract)

	orig := addrOf(page)
	repl := orig + 256
	load := asFunc[func(a, b int) int](t, orig)
	require.Equal(105, load(0, 5))

	h, err := New(orig, repl)
	require.NoError(err)
	t.Cleanup(func() { h.Free() })

	require.NoError(h.Prepare())
	assert.Less(distance(orig, h.TrampolineAddress()), uintptr(1<<31))

	tramp, err := Trampoline[func(a, b int) int](h)
	require.NoError(err)
	assert.Equal(105, tramp(0, 5))

	require.NoError(h.Apply())
	assert.Equal(-5, load(0, 5))
	assert.Equal(105, tramp(0, 5))

	require.NoError(h.Free())
	assert.Equal(code, snapshot(orig, len(code)))
	assert.Equal(105, load(0, 5))
}
