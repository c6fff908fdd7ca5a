//go:build !(linux && amd64)

package execmem

// Only Linux on amd64 has MAP_32BIT. Elsewhere the OS picks the address and
// jumps that cannot reach it fall back to absolute form.
const map32bit = 0
