package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(2, nil)

	jobA, createdA := q.Enqueue(EnqueueRequest{
		Kind:      KindProcess,
		DedupeKey: "checksum-1",
	})
	jobB, createdB := q.Enqueue(EnqueueRequest{
		Kind:      KindProcess,
		DedupeKey: "checksum-1",
	})

	require.True(t, createdA)
	require.False(t, createdB)
	require.NotNil(t, jobA)
	require.NotNil(t, jobB)
	assert.Equal(t, jobA.ID, jobB.ID)
}

func TestQueue_Enqueue_ExplicitID(t *testing.T) {
	q := NewQueue(1, nil)

	job, created := q.Enqueue(EnqueueRequest{
		ID:       "abc_fr",
		Kind:     KindTranslate,
		Status:   "Translation request received",
		Progress: 5,
	})
	require.True(t, created)
	assert.Equal(t, "abc_fr", job.ID)
	assert.Equal(t, StatePending, job.State)
	assert.Equal(t, 5, job.Progress)

	again, created := q.Enqueue(EnqueueRequest{ID: "abc_fr", Kind: KindTranslate})
	assert.False(t, created)
	assert.Equal(t, "Translation request received", again.Status)
}

func TestQueue_Enqueue_AllowsRetryAfterFailure(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts atomic.Int32
	q.Start(func(_ context.Context, _ *Job, _ Reporter) error {
		if attempts.Add(1) == 1 {
			return assert.AnError
		}
		return nil
	})
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{
		Kind:      KindProcess,
		DedupeKey: "retry-key",
	})
	require.True(t, created)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got != nil && got.State == StateFailure
	}, time.Second, 10*time.Millisecond)

	failed, _ := q.Get(first.ID)
	assert.Equal(t, "Error: "+assert.AnError.Error(), failed.Status)
	assert.Zero(t, failed.Progress)

	second, created := q.Enqueue(EnqueueRequest{
		Kind:      KindProcess,
		DedupeKey: "retry-key",
	})
	require.True(t, created)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	require.Eventually(t, func() bool {
		got, ok := q.Get(second.ID)
		return ok && got != nil && got.State == StateSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Enqueue_AllowsRetryAfterSuccess(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *Job, _ Reporter) error { return nil })
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{
		Kind:      KindProcess,
		DedupeKey: "done-key",
	})
	require.True(t, created)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got != nil && got.State == StateSuccess
	}, time.Second, 10*time.Millisecond)

	second, created := q.Enqueue(EnqueueRequest{
		Kind:      KindProcess,
		DedupeKey: "done-key",
	})
	require.True(t, created)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestQueue_PrunesOldestTerminalJobs(t *testing.T) {
	q := NewQueue(1, nil, WithMaxJobs(2))
	q.Start(func(_ context.Context, _ *Job, _ Reporter) error { return nil })
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		q.Enqueue(EnqueueRequest{ID: id, Kind: KindProcess})
		require.Eventually(t, func() bool {
			got, ok := q.Get(id)
			return ok && got.State == StateSuccess
		}, time.Second, 10*time.Millisecond)
	}

	_, ok := q.Get("a")
	assert.False(t, ok)
	assert.Len(t, q.List(), 2)
}

func TestQueue_PruneBefore(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)
	q.Start(func(_ context.Context, _ *Job, _ Reporter) error { return nil })
	defer q.Stop()

	q.Enqueue(EnqueueRequest{ID: "old", Kind: KindProcess})
	require.Eventually(t, func() bool {
		got, ok := q.Get("old")
		return ok && got.State == StateSuccess
	}, time.Second, 10*time.Millisecond)

	pruned := q.PruneBefore(time.Now().Add(time.Minute))
	assert.Equal(t, []string{"old"}, pruned)
	_, ok := q.Get("old")
	assert.False(t, ok)
	assert.NotContains(t, store.snapshot(), "old")
}

func TestState_Reported(t *testing.T) {
	assert.Equal(t, StatePending, StateRunning.Reported())
	assert.Equal(t, StateSuccess, StateSuccess.Reported())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateFailure.Terminal())
}
