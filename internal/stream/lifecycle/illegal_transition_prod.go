// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !debug

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// IllegalTransition is called when the worker is about to take an edge the
// tables do not know about. Production builds log and refuse the edge.
func IllegalTransition(dir model.Direction, from, to model.State, cause string) error {
	err := fmt.Errorf("illegal %s transition: %s -> %s (%s)", dir, from, to, cause)
	logger := log.WithComponent("stream.lifecycle")
	logger.Error().
		Str(log.FieldEvent, "lifecycle.illegal_transition").
		Str(log.FieldDirection, dir.String()).
		Str(log.FieldStateFrom, from.String()).
		Str(log.FieldStateTo, to.String()).
		Msg(err.Error())
	return err
}
