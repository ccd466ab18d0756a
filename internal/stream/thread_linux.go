//go:build linux

package stream

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func gettid() int64 {
	return int64(unix.Gettid())
}

// setRealtimePriority switches the calling thread to SCHED_FIFO.
func setRealtimePriority(priority int) error {
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Flags:    unix.SCHED_FLAG_RESET_ON_FORK,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, attr, 0); err != nil {
		return fmt.Errorf("sched_setattr SCHED_FIFO %d: %w", priority, err)
	}
	return nil
}
