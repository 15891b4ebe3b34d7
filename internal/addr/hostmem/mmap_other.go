//go:build !unix

package hostmem

// mapSlab falls back to Go-heap slabs where mmap is unavailable. Addresses
// are still real and unique, just not page-granular.
func mapSlab(n int) ([]byte, error) {
	return make([]byte, n), nil
}

// unmapSlab lets the garbage collector reclaim the slab.
func unmapSlab([]byte) error {
	return nil
}
