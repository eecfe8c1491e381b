package jobs

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopDrainsBufferedJobs(t *testing.T) {
	var processed int32
	gate := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-gate
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	// Hold the single worker on the gate so the rest stay buffered.
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: strconv.Itoa(i), Type: "noop"}))
	}
	close(gate)
	q.Stop()

	assert.EqualValues(t, 5, atomic.LoadInt32(&processed))

	err := q.Enqueue(Job{ID: "late", Type: "noop"})
	require.Error(t, err)
}

func TestFailedJobRetriedThenDropped(t *testing.T) {
	var attempts int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "j1", Type: "noop"}))
	q.Stop()

	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})

	err := q.Enqueue(Job{ID: "early", Type: "noop"})
	require.Error(t, err)
}

func TestStopTwiceIsNoOp(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	q.Start(context.Background())

	q.Stop()
	q.Stop()
}
