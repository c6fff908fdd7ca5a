package execmem

import (
	"fmt"
	"os"
	"unsafe"
)

// pageSpan returns the start of the page containing addr and the length of
// the whole pages covering [addr, addr+size).
func pageSpan(addr uintptr, size int) (uintptr, int) {
	pageSize := uintptr(os.Getpagesize())

	// Round address down to page boundary.
	// Example: addr=4196 with pageSize=4096 becomes 4096.
	pageStart := addr &^ (pageSize - 1)

	// Round up to cover complete pages, including a span that crosses
	// into the next page.
	end := addr + uintptr(size)
	regionSize := (end - pageStart + pageSize - 1) &^ (pageSize - 1)

	return pageStart, int(regionSize)
}

// MakeWritable allows writes to the pages covering [addr, addr+size).
//
// Code pages are shared with other functions that may be running, so they
// stay executable. Callers must restore them with MakeExecutable as soon as
// the write is done.
func MakeWritable(addr uintptr, size int) error {
	return protect(addr, size, mprotectRWX)
}

// MakeExecutable makes the pages covering [addr, addr+size) read+exec.
func MakeExecutable(addr uintptr, size int) error {
	return protect(addr, size, mprotectRX)
}

// View returns a slice aliasing size bytes of memory at addr. It must only be
// read unless the pages have been made writable.
func View(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

// Write copies data to addr within a single write window. If the pages
// cannot be made writable nothing is copied.
func Write(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	err := MakeWritable(addr, len(data))
	if err != nil {
		return fmt.Errorf("unable to make %#x writable: %w", addr, err)
	}

	copy(View(addr, len(data)), data)

	err = MakeExecutable(addr, len(data))
	if err != nil {
		return fmt.Errorf("unable to restore protection at %#x: %w", addr, err)
	}
	return nil
}
