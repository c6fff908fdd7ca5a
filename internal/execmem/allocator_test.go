package execmem

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator(t *testing.T) {
	assert := assert.New(t)
	a := &Allocator{}

	block, err := a.Allocate(32)
	require.NoError(t, err)
	assert.NotZero(block.Addr())
	assert.Equal(32, block.Len())
	assert.Equal(1, a.Live())

	code := []byte{0x55, 0x48, 0x89, 0xe5, 0x5d, 0xc3}
	if assert.NoError(block.Write(code)) {
		assert.Equal(code, block.Bytes()[:len(code)])
		for _, b := range block.Bytes()[len(code):] {
			assert.Equal(byte(opcodeINT3), b)
		}
	}

	assert.Error(block.Write(make([]byte, 33)))

	second, err := a.Allocate(16)
	require.NoError(t, err)
	assert.Equal(2, a.Live())
	assert.NotEqual(block.Addr(), second.Addr())

	assert.NoError(block.Free())
	assert.Equal(1, a.Live())
	assert.Zero(block.Addr())

	// Freeing twice is harmless
	assert.NoError(block.Free())
	assert.Equal(1, a.Live())

	assert.Error(block.Write(code))

	assert.NoError(second.Free())
	assert.Equal(0, a.Live())
}

func TestAllocator_RestoreProtectionFails(t *testing.T) {
	assert := assert.New(t)
	a := &Allocator{}

	// Initialize the arena, then make returning to read+exec fail.
	first, err := a.Allocate(16)
	require.NoError(t, err)

	mprotect := a.mprotect
	t.Cleanup(func() { a.mprotect = mprotect })

	errProtect := errors.New("mprotect failed")
	a.mprotect = func(flags int) error {
		if flags == mprotectRX {
			return errProtect
		}
		return mprotect(flags)
	}

	block, err := a.Allocate(16)
	assert.ErrorIs(err, ErrAllocation)
	assert.ErrorIs(err, errProtect)
	assert.Nil(block)
	assert.Equal(1, a.Live())

	a.mprotect = mprotect
	assert.NoError(first.Free())
	assert.Equal(0, a.Live())
	assert.False(a.mutable)
}

func TestAllocator_InvalidSize(t *testing.T) {
	a := &Allocator{}
	_, err := a.Allocate(0)
	assert.Error(t, err)
	assert.Equal(t, 0, a.Live())
}

func TestPageSpan(t *testing.T) {
	pageSize := uintptr(os.Getpagesize())

	cases := map[string]struct {
		addr      uintptr
		size      int
		start     uintptr
		regionLen int
	}{
		"page aligned": {
			addr:      4 * pageSize,
			size:      16,
			start:     4 * pageSize,
			regionLen: int(pageSize),
		},
		"within a page": {
			addr:      4*pageSize + 100,
			size:      16,
			start:     4 * pageSize,
			regionLen: int(pageSize),
		},
		"crosses a page": {
			addr:      5*pageSize - 4,
			size:      14,
			start:     4 * pageSize,
			regionLen: int(2 * pageSize),
		},
		"ends on a boundary": {
			addr:      5*pageSize - 14,
			size:      14,
			start:     4 * pageSize,
			regionLen: int(pageSize),
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			start, regionLen := pageSpan(tc.addr, tc.size)
			assert.Equal(t, tc.start, start)
			assert.Equal(t, tc.regionLen, regionLen)
		})
	}
}

func TestWrite(t *testing.T) {
	assert := assert.New(t)
	a := &Allocator{}

	block, err := a.Allocate(64)
	require.NoError(t, err)
	t.Cleanup(func() { block.Free() })

	require.NoError(t, block.Write([]byte{0x90, 0x90, 0x90, 0xc3}))

	before := append([]byte(nil), View(block.Addr(), 4)...)
	assert.Equal([]byte{0x90, 0x90, 0x90, 0xc3}, before)

	require.NoError(t, Write(block.Addr(), []byte{0xcc, 0xc3}))
	assert.Equal([]byte{0xcc, 0xc3, 0x90, 0xc3}, View(block.Addr(), 4))

	require.NoError(t, Write(block.Addr(), before[:2]))
	assert.Equal(before, View(block.Addr(), 4))

	assert.NoError(Write(block.Addr(), nil))
}
