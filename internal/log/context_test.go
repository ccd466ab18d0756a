// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDs(t *testing.T) {
	tests := []struct {
		name   string
		ctx    context.Context
		id     string
		set    func(context.Context, string) context.Context
		lookup func(context.Context) string
	}{
		{"request id on nil context", nil, "req-1", ContextWithRequestID, RequestIDFromContext},
		{"request id on background", context.Background(), "req-2", ContextWithRequestID, RequestIDFromContext},
		{"stream id", context.Background(), "stream-9", ContextWithStreamID, StreamIDFromContext},
		{"empty stream id", context.Background(), "", ContextWithStreamID, StreamIDFromContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.set(tt.ctx, tt.id)
			assert.Equal(t, tt.id, tt.lookup(ctx))
		})
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithStreamID(ContextWithRequestID(context.Background(), "r1"), "s1")
	l := WithContext(ctx, logger)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "r1", entry[FieldRequestID])
	assert.Equal(t, "s1", entry[FieldStreamID])
}

func TestWithContextWithoutFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	l := WithContext(context.Background(), logger)
	l.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, FieldRequestID)
	assert.NotContains(t, entry, FieldStreamID)
}
