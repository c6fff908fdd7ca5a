// Package detour redirects native x86 and x86-64 functions at runtime.
//
// A detour overwrites the first instructions of a target function with a
// jump to a replacement. The overwritten instructions are moved into a
// trampoline, so the original behavior stays callable:
//
//	h, err := detour.New(target, replacement)
//	if err != nil {
//		...
//	}
//	defer h.Free()
//
//	err = h.Apply()
//	original, err := detour.Trampoline[func(int) int](h)
//
// Targets may be Go func values or raw addresses of code from any source.
// The Native provider does its own decoding and relocation; the Gohook
// provider hands the work to github.com/brahma-adshonor/gohook.
//
// Limitations:
//   - Only supports 386 and amd64
//   - The native provider refuses targets whose first bytes contain a
//     branch or call, which includes every Go function with a stack check
//   - Patching while another thread runs the target's first instructions
//     can crash that thread
//   - Silently fails to redirect callers of inlined functions
//   - Relies on internal Go APIs that can break at any time
package detour
