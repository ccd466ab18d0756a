//go:build !linux

package mmap

// New returns a heap-backed region on platforms without memfd support.
func New(_ string, size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return &Region{data: make([]byte, size), fd: -1}, nil
}
