package detour

import _ "unsafe"

type funcInfo struct {
	*_func
	datap *moduledata
}

type _func struct {
	entryOff uint32 // start pc, as offset from moduledata.text/pcHeader.textStart
	nameOff  int32  // function name, as index into moduledata.funcnametab.

	args        int32
	deferreturn uint32

	pcsp      uint32
	pcfile    uint32
	pcln      uint32
	npcdata   uint32
	cuOffset  uint32
	startLine int32
	funcID    uint8
	flag      uint8
	_         [1]byte
	nfuncdata uint8
}

// moduledata mirrors the head of runtime.moduledata. It must match
// cmd/link/internal/ld/symtab.go:symtab up to the last field used here.
type moduledata struct {
	pcHeader     *pcHeader
	funcnametab  []byte
	cutab        []uint32
	filetab      []byte
	pctab        []byte
	pclntable    []byte
	ftab         []functab
	findfunctab  uintptr
	minpc, maxpc uintptr

	text, etext uintptr

	// Struct continues, omitting unused fields.
}

// pcHeader is only referenced by pointer.
type pcHeader struct{}

type functab struct {
	entryoff uint32 // relative to runtime.text
	funcoff  uint32
}

//go:linkname findfunc runtime.findfunc
func findfunc(pc uintptr) funcInfo

// funcLength returns the size of the Go function starting at entry. ok is
// false for addresses outside Go's text, such as C functions or generated
// code, and for addresses that are not a function's entry point.
func funcLength(entry uintptr) (length int, ok bool) {
	info := findfunc(entry)
	if info._func == nil || info.datap == nil {
		return 0, false
	}
	if entry < info.datap.text || entry >= info.datap.etext {
		return 0, false
	}

	funcOffset := uint32(entry - info.datap.text)
	if info.entryOff != funcOffset {
		return 0, false
	}

	// The function ends where the next one starts.
	end := uint32(info.datap.etext - info.datap.text)
	for _, ft := range info.datap.ftab {
		if ft.entryoff > funcOffset && ft.entryoff < end {
			end = ft.entryoff
		}
	}

	return int(end - funcOffset), true
}

// scanWindow returns how many bytes at entry may be decoded.
func scanWindow(entry uintptr, limit int) int {
	if n, ok := funcLength(entry); ok && n < limit {
		return n
	}
	return limit
}
