package fmq

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageQueueRejectsZeroCapacity(t *testing.T) {
	_, err := NewMessageQueue[int](0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestMessageQueueFIFO(t *testing.T) {
	q, err := NewMessageQueue[int](3)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.True(t, q.WriteBlocking(i))
	}
	assert.Equal(t, 0, q.AvailableToWrite())
	assert.Equal(t, 3, q.AvailableToRead())

	for i := 1; i <= 3; i++ {
		v, ok := q.ReadBlocking()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestMessageQueueReadBlocksUntilWrite(t *testing.T) {
	q, err := NewMessageQueue[string](1)
	require.NoError(t, err)

	got := make(chan string, 1)
	go func() {
		v, ok := q.ReadBlocking()
		if ok {
			got <- v
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	require.True(t, q.WriteBlocking("hello"))
	assert.Equal(t, "hello", <-got)
}

func TestMessageQueueCloseUnblocksReader(t *testing.T) {
	q, err := NewMessageQueue[int](1)
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.ReadBlocking()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("reader not released by Close")
	}
}

func TestMessageQueueDrainsBufferedAfterClose(t *testing.T) {
	q, err := NewMessageQueue[int](2)
	require.NoError(t, err)
	require.True(t, q.WriteBlocking(7))
	q.Close()

	v, ok := q.ReadBlocking()
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = q.ReadBlocking()
	assert.False(t, ok)
}

func TestMessageQueueWriteOnClosedReportsError(t *testing.T) {
	q, err := NewMessageQueue[int](1)
	require.NoError(t, err)

	var kinds atomic.Int32
	q.SetErrorHandler(func(kind ErrorKind, _ string) {
		if kind == ErrorClosed {
			kinds.Add(1)
		}
	})
	q.Close()
	assert.False(t, q.WriteBlocking(1))
	assert.Equal(t, int32(1), kinds.Load())
}

func TestMessageQueueFailReportsCorruption(t *testing.T) {
	q, err := NewMessageQueue[int](1)
	require.NoError(t, err)

	var got ErrorKind = -1
	q.SetErrorHandler(func(kind ErrorKind, _ string) { got = kind })
	q.Fail("bad slot")
	assert.Equal(t, ErrorCorrupted, got)
	assert.True(t, q.Closed())
}

func TestMessageQueueClientContext(t *testing.T) {
	q, err := NewMessageQueue[int](1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Write(context.Background(), 5))
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, q.Write(ctx2, 6), context.DeadlineExceeded)

	q.Close()
	assert.ErrorIs(t, q.Write(context.Background(), 6), ErrClosed)
	v, err := q.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	_, err = q.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
