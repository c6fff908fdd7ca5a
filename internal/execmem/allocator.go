// Package execmem manages executable memory: an arena for generated code
// and page protection changes for patching existing code.
package execmem

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
)

// ErrAllocation means no executable memory could be obtained.
var ErrAllocation = errors.New("unable to allocate executable memory")

// Allocator hands out blocks of executable memory from a single arena. The
// arena is read+exec except for the short windows in which a block is
// allocated, written or freed.
type Allocator struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	mutable  bool
	live     int

	// near, when set, asks the kernel to map the arena close to this
	// address instead of in the low 2GiB.
	near uintptr
}

// Default is the allocator shared by every detour in the process.
var Default = &Allocator{}

const (
	nearRegion   = 1 << 30
	nearDistance = 512 << 20
)

var (
	nearMu         sync.Mutex
	nearAllocators = map[uintptr]*Allocator{}
)

// Near returns an allocator whose memory is placed close to addr, so code
// copied from addr can still reach its IP-relative operands. Allocators are
// shared by every address in the same 1GiB region.
func Near(addr uintptr) *Allocator {
	region := addr / nearRegion

	nearMu.Lock()
	defer nearMu.Unlock()

	a, ok := nearAllocators[region]
	if !ok {
		a = &Allocator{near: nearHint(addr)}
		nearAllocators[region] = a
	}
	return a
}

// nearHint picks a mapping address half a gigabyte from addr, which is
// usually free and well within rel32 range of it.
func nearHint(addr uintptr) uintptr {
	pageSize := uintptr(os.Getpagesize())
	if addr > nearDistance {
		return (addr - nearDistance) &^ (pageSize - 1)
	}
	return (addr + nearDistance) &^ (pageSize - 1)
}

func (a *Allocator) init(startSize int) error {
	var err error
	a.initOnce.Do(func() {
		opts := []malloc.BackendOpt{malloc.MmapProt(mprotectExec)}
		if a.near != 0 {
			opts = append(opts, malloc.MmapAddr(a.near))
		} else {
			opts = append(opts, malloc.MmapFlags(map32bit))
		}

		be := malloc.MmapBackend(opts...)
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		startSize = max(startSize, os.Getpagesize())
		a.Arena = malloc.NewArena(uint64(startSize), malloc.Backend(be))
		if a.Arena == nil {
			err = errors.New("unable to initialize arena")
			return
		}
		a.mutable = true
	})
	if err == nil && a.Arena == nil {
		err = errors.New("arena failed to initialize")
	}
	return err
}

// beginMutate makes the arena writable. a.mu must be held.
func (a *Allocator) beginMutate() error {
	// Note that beginMutate can be called before the initial allocation.
	if a.mprotect == nil || a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRWX)
	if err == nil {
		a.mutable = true
	}
	return err
}

// endMutate returns the arena to read+exec. a.mu must be held.
func (a *Allocator) endMutate() error {
	if !a.mutable || a.mprotect == nil {
		return nil
	}

	err := a.mprotect(mprotectRX)
	if err == nil {
		a.mutable = false
	}
	return err
}

// Allocate reserves size bytes of executable memory.
func (a *Allocator) Allocate(size int) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid allocation size %d", size)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.init(size)
	if err != nil {
		return nil, fmt.Errorf("%w: error initializing allocator: %w", ErrAllocation, err)
	}

	err = a.beginMutate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllocation, err)
	}

	buf, err := malloc.MallocSlice[byte](a.Arena, size)
	if err == nil && len(buf) < size {
		malloc.FreeSlice(a.Arena, buf)
		err = fmt.Errorf("got %d of %d bytes", len(buf), size)
	}
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%w: %d bytes: %w", ErrAllocation, size, err), a.endMutate())
	}

	// The block is only returned once the arena is read+exec again.
	if err := a.endMutate(); err != nil {
		malloc.FreeSlice(a.Arena, buf)
		return nil, fmt.Errorf("%w: restoring protection: %w", ErrAllocation, err)
	}

	a.live++
	return &Block{alloc: a, code: buf[:size]}, nil
}

// Live returns the number of blocks that have not been freed.
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Block is a region of executable memory owned by one caller until Free.
type Block struct {
	alloc *Allocator
	code  []byte
}

// Addr returns the address of the first byte of the block.
func (b *Block) Addr() uintptr {
	if b == nil || b.code == nil {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.code)))
}

// Len returns the size of the block.
func (b *Block) Len() int {
	if b == nil {
		return 0
	}
	return len(b.code)
}

// Bytes returns the current contents of the block. The slice must not be
// written to; use Write.
func (b *Block) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.code
}

// Write copies code to the start of the block. The block is executable
// again when Write returns without error.
func (b *Block) Write(code []byte) error {
	if b == nil || b.code == nil {
		return errors.New("write to freed block")
	}
	if len(code) > len(b.code) {
		return fmt.Errorf("%d bytes does not fit in a %d byte block", len(code), len(b.code))
	}

	a := b.alloc
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.beginMutate()
	if err != nil {
		return err
	}

	copy(b.code, code)
	// Fill the tail so stray execution traps.
	for i := len(code); i < len(b.code); i++ {
		b.code[i] = opcodeINT3
	}

	return a.endMutate()
}

// Free releases the block. Freeing a block twice is a no-op.
func (b *Block) Free() error {
	if b == nil || b.code == nil {
		return nil
	}

	a := b.alloc
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.beginMutate()
	if err != nil {
		return err
	}

	malloc.FreeSlice(a.Arena, b.code)
	b.code = nil
	a.live--

	return a.endMutate()
}

const opcodeINT3 = 0xcc
