package execmem

import "golang.org/x/sys/unix"

// Keep generated code in the low 2GiB, next to the text segment of a non-PIE
// Go binary, so rel32 jumps reach it.
const map32bit = unix.MAP_32BIT
