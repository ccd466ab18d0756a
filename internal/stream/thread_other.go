//go:build !linux

package stream

import (
	"errors"
	"sync/atomic"
)

var nextTid atomic.Int64

// gettid hands out process-unique thread identifiers where the OS does not
// expose one.
func gettid() int64 {
	return nextTid.Add(1)
}

func setRealtimePriority(int) error {
	return errors.New("real-time scheduling is not supported on this platform")
}
