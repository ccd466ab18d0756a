// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import "errors"

var (
	ErrAlreadyClosed  = errors.New("stream already closed")
	ErrAlreadyStarted = errors.New("stream worker already started")
	ErrNotStarted     = errors.New("stream worker not started")
	ErrInvalidContext = errors.New("invalid stream context")
	ErrWorkerExited   = errors.New("stream worker exited")
)
