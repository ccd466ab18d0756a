//go:build !debug

package stream

import "github.com/ManuGH/audiostream/internal/log"

func reportUnclosedStream(id string) {
	l := log.WithComponent("stream")
	l.Error().
		Str(log.FieldEvent, "stream.not_closed").
		Str(log.FieldStreamID, id).
		Msg("stream was destroyed without being closed; its worker thread leaks")
}

func onQueueCorrupted(id, queue, msg string) {
	l := log.WithComponent("stream")
	l.Error().
		Str(log.FieldEvent, "stream.queue_corrupted").
		Str(log.FieldStreamID, id).
		Str("queue", queue).
		Msg(msg)
}
