//go:build linux

package mmap

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// New creates an anonymous shared-memory region backed by a memfd.
func New(name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &Region{
		data: data,
		fd:   fd,
		unmap: func() error {
			return errors.Join(unix.Munmap(data), unix.Close(fd))
		},
	}, nil
}
