package detour

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/pboyd/detour/internal/execmem"
	"github.com/pboyd/detour/internal/x86"
)

// nativeHandle patches the target itself: it decodes the target's first
// instructions, moves them into a trampoline and overwrites them with a jump
// to the detour.
type nativeHandle struct {
	orig, repl target
	opts       options
	log        *log.Logger
	bitness    int

	state    State
	kind     x86.JumpKind
	region   x86.PatchRegion
	snapshot []byte
	block    *execmem.Block
	tramp    x86.Trampoline
	refs     bindings
}

func newNativeHandle(original, detour any, opts ...Option) (Handle, error) {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "386" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, runtime.GOARCH)
	}

	orig, repl, err := resolvePair(original, detour)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)
	return &nativeHandle{
		orig:    orig,
		repl:    repl,
		opts:    o,
		log:     o.logger.With("target", fmt.Sprintf("%#x", orig.addr)),
		bitness: strconv.IntSize,
	}, nil
}

func (h *nativeHandle) OriginalAddress() uintptr   { return h.orig.addr }
func (h *nativeHandle) DetourAddress() uintptr     { return h.repl.addr }
func (h *nativeHandle) TrampolineAddress() uintptr { return h.block.Addr() }
func (h *nativeHandle) State() State               { return h.state }

func (h *nativeHandle) Prepare() error {
	switch h.state {
	case Prepared, Applied:
		return nil
	case Freed:
		return invalidState("prepare", h.state)
	}

	window := scanWindow(h.orig.addr, h.opts.scanLimit)
	code := execmem.View(h.orig.addr, window)

	h.kind = x86.SelectJump(h.orig.addr, h.repl.addr, h.bitness)
	region, err := x86.Plan(code, h.orig.addr, h.bitness, h.kind.Len())
	if err != nil {
		return fmt.Errorf("unable to patch %#x with a %s jump: %w", h.orig.addr, h.kind, err)
	}

	block, tramp, err := h.buildTrampoline(region, execmem.Default)
	if errors.Is(err, x86.ErrUnrelocatable) {
		// The shared arena is too far away for an IP-relative operand.
		// Try again with memory mapped next to the target.
		h.log.Debug("retrying with a nearby arena", "err", err)
		block, tramp, err = h.buildTrampoline(region, execmem.Near(h.orig.addr))
	}
	if err != nil {
		return err
	}

	h.region = region
	h.snapshot = region.Bytes()
	h.block = block
	h.tramp = tramp
	h.state = Prepared

	h.log.Debugf("Original: 0x%x, Trampoline: 0x%x, diff: 0x%x",
		h.orig.addr, block.Addr(), distance(h.orig.addr, block.Addr()))
	if h.log.GetLevel() <= log.DebugLevel {
		if asm, err := x86.Disassemble(tramp.Code, tramp.Base, h.bitness); err == nil {
			h.log.Debug("trampoline\n" + asm)
		}
	}

	return nil
}

// buildTrampoline allocates a block from alloc and writes the relocated
// region to it. The block is released on failure.
func (h *nativeHandle) buildTrampoline(region x86.PatchRegion, alloc *execmem.Allocator) (*execmem.Block, x86.Trampoline, error) {
	block, err := alloc.Allocate(x86.MaxTrampolineLen(region))
	if err != nil {
		return nil, x86.Trampoline{}, err
	}

	tramp, err := x86.Relocate(region, block.Addr(), h.bitness)
	if err != nil {
		return nil, x86.Trampoline{}, errors.Join(
			fmt.Errorf("unable to relocate %#x to %#x: %w", h.orig.addr, block.Addr(), err),
			block.Free(),
		)
	}

	err = block.Write(tramp.Code)
	if err != nil {
		return nil, x86.Trampoline{}, errors.Join(
			fmt.Errorf("%w: writing trampoline: %w", ErrAllocation, err),
			block.Free(),
		)
	}

	return block, tramp, nil
}

func (h *nativeHandle) Apply() error {
	switch h.state {
	case Applied:
		return nil
	case Freed:
		return invalidState("apply", h.state)
	case Created:
		if err := h.Prepare(); err != nil {
			return err
		}
	}

	patch, err := x86.EncodePatch(h.orig.addr, h.repl.addr, h.kind, h.bitness, h.region.Len())
	if err != nil {
		return fmt.Errorf("unable to encode jump at %#x: %w", h.orig.addr, err)
	}

	return h.write(patch, Applied)
}

func (h *nativeHandle) Undo() error {
	switch h.state {
	case Freed:
		return invalidState("undo", h.state)
	case Applied:
		return h.write(h.snapshot, Prepared)
	}
	return nil
}

// write copies code over the patch region. The state moves to next once the
// bytes are in place, even if restoring the page protection fails.
func (h *nativeHandle) write(code []byte, next State) error {
	err := execmem.Write(h.orig.addr, code)
	if bytes.Equal(execmem.View(h.orig.addr, len(code)), code) {
		h.state = next
	}
	if err != nil {
		h.log.Error("patch failed", "state", next, "err", err)
		return err
	}
	h.log.Debug("patched", "state", next, "bytes", len(code))
	return nil
}

func (h *nativeHandle) Free() error {
	switch h.state {
	case Freed:
		return invalidState("free", h.state)
	case Applied:
		if err := h.Undo(); err != nil {
			return err
		}
	}

	h.refs.clear()
	err := h.block.Free()
	h.block = nil
	h.snapshot = nil
	h.region = x86.PatchRegion{}
	h.tramp = x86.Trampoline{}
	h.state = Freed
	return err
}

func (h *nativeHandle) GenerateTrampoline(fnPtr any) error {
	switch h.state {
	case Freed:
		return invalidState("generate trampoline", h.state)
	case Created:
		if err := h.Prepare(); err != nil {
			return err
		}
	}

	ref, err := bindFunc(fnPtr, h.tramp.Entry(), h.orig.typ)
	if err != nil {
		return err
	}
	h.refs.add(ref)
	return nil
}

func distance(a, b uintptr) uintptr {
	if a > b {
		return a - b
	}
	return b - a
}
