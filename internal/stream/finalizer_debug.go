//go:build debug

package stream

import "fmt"

func reportUnclosedStream(id string) {
	panic(fmt.Sprintf("stream %s was destroyed without being closed", id))
}

func onQueueCorrupted(id, queue, msg string) {
	panic(fmt.Sprintf("stream %s: %s queue corrupted: %s", id, queue, msg))
}
