// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fmq implements the fixed-capacity single-producer/single-consumer
// queues that connect a stream client to its worker: a slot queue for
// commands and replies, and a byte ring for audio data.
//
// A queue reports failure only for transport problems (closed or corrupted).
// Logical rejection is the business of the protocol layered on top.
package fmq
