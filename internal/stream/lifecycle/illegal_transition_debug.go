// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build debug

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

// IllegalTransition is called when the worker is about to take an edge the
// tables do not know about.
func IllegalTransition(dir model.Direction, from, to model.State, cause string) error {
	panic(fmt.Sprintf("illegal %s transition: %s -> %s (%s)", dir, from, to, cause))
}
