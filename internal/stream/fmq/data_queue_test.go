package fmq

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataQueueZeroByteTransfersSucceed(t *testing.T) {
	q, err := NewDataQueue(8)
	require.NoError(t, err)
	q.Close()
	assert.True(t, q.Write(nil))
	assert.True(t, q.Read([]byte{}))
}

func TestDataQueueAvailability(t *testing.T) {
	q, err := NewDataQueue(8)
	require.NoError(t, err)
	assert.Equal(t, 0, q.AvailableToRead())
	assert.Equal(t, 8, q.AvailableToWrite())

	require.True(t, q.Write([]byte{1, 2, 3}))
	assert.Equal(t, 3, q.AvailableToRead())
	assert.Equal(t, 5, q.AvailableToWrite())

	assert.False(t, q.Write(make([]byte, 6)), "write larger than free space must fail")
	assert.Equal(t, 3, q.AvailableToRead(), "failed write must not change fill")

	assert.False(t, q.Read(make([]byte, 4)), "read larger than fill must fail")
}

func TestDataQueueWrapAround(t *testing.T) {
	q, err := NewDataQueue(8)
	require.NoError(t, err)

	require.True(t, q.Write([]byte{1, 2, 3, 4, 5, 6}))
	out := make([]byte, 5)
	require.True(t, q.Read(out))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, out)

	require.True(t, q.Write([]byte{7, 8, 9, 10, 11, 12}))
	assert.Equal(t, 7, q.AvailableToRead())

	out = make([]byte, 7)
	require.True(t, q.Read(out))
	assert.Equal(t, []byte{6, 7, 8, 9, 10, 11, 12}, out)
}

func TestDataQueueCorruptionReported(t *testing.T) {
	q, err := NewDataQueue(8)
	require.NoError(t, err)

	var kinds []ErrorKind
	q.SetErrorHandler(func(kind ErrorKind, _ string) { kinds = append(kinds, kind) })

	q.writePos.Store(100)
	assert.Equal(t, 0, q.AvailableToRead())
	assert.False(t, q.Write([]byte{1}))
	require.NotEmpty(t, kinds)
	assert.Equal(t, ErrorCorrupted, kinds[0])
}

func TestDataQueueBlockingProducerConsumer(t *testing.T) {
	q, err := NewDataQueue(16)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF, 0x01}, 64)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		for off := 0; off < len(payload); off += 8 {
			if err := q.WriteBlocking(ctx, payload[off:off+8]); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	got := make([]byte, 0, len(payload))
	chunk := make([]byte, 4)
	for len(got) < len(payload) {
		require.NoError(t, q.ReadBlocking(ctx, chunk))
		got = append(got, chunk...)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, payload, got)
}

func TestDataQueueBlockingErrors(t *testing.T) {
	q, err := NewDataQueue(4)
	require.NoError(t, err)

	assert.ErrorIs(t, q.WriteBlocking(context.Background(), make([]byte, 5)), ErrTooLarge)
	assert.ErrorIs(t, q.ReadBlocking(context.Background(), make([]byte, 5)), ErrTooLarge)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.ReadBlocking(ctx, make([]byte, 2)), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- q.ReadBlocking(context.Background(), make([]byte, 2)) }()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	assert.ErrorIs(t, <-done, ErrClosed)
}
