//go:build unix

package hostmem

import "golang.org/x/sys/unix"

// mapSlab reserves n bytes of zeroed private anonymous memory.
func mapSlab(n int) ([]byte, error) {
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// unmapSlab returns a slab to the operating system.
func unmapSlab(b []byte) error {
	return unix.Munmap(b)
}
