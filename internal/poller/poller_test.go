package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MimeLyc/subtitle-studio/internal/jobclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedQuerier replays a fixed sequence of responses and records how many
// queries were in flight at once.
type scriptedQuerier struct {
	mu        sync.Mutex
	responses []jobclient.Status
	errAt     int
	err       error
	calls     int
	inFlight  int32
	maxFlight int32
	ids       []string
}

func (q *scriptedQuerier) Status(_ context.Context, id string) (jobclient.Status, error) {
	n := atomic.AddInt32(&q.inFlight, 1)
	defer atomic.AddInt32(&q.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&q.maxFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&q.maxFlight, cur, n) {
			break
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	q.ids = append(q.ids, id)
	if q.err != nil && q.calls == q.errAt {
		return jobclient.Status{}, q.err
	}
	idx := q.calls - 1
	if idx >= len(q.responses) {
		idx = len(q.responses) - 1
	}
	return q.responses[idx], nil
}

func (q *scriptedQuerier) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func pending(msg string, pct int) jobclient.Status {
	return jobclient.Status{Status: msg, Progress: pct, State: jobclient.StatePending}
}

func TestPoller_SuccessAfterPending(t *testing.T) {
	q := &scriptedQuerier{responses: []jobclient.Status{
		pending("Extracting audio", 30),
		{Status: "Done", Progress: 100, State: jobclient.StateSuccess},
	}}
	p := New(q, WithInterval(time.Millisecond))

	var updates []jobclient.Status
	final, err := p.Poll(context.Background(), "abc", func(st jobclient.Status) {
		updates = append(updates, st)
	})

	require.NoError(t, err)
	assert.Equal(t, jobclient.StateSuccess, final.State)
	require.Len(t, updates, 2)
	assert.Equal(t, 30, updates[0].Progress)
	assert.Equal(t, "Done", updates[1].Status)
	assert.Equal(t, []string{"abc", "abc"}, q.ids)
}

func TestPoller_FailureUsesServerMessageOrDefault(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantMsg string
	}{
		{name: "server message", status: "Error: ffmpeg exited 1", wantMsg: "Error: ffmpeg exited 1"},
		{name: "default message", status: "", wantMsg: "Translation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &scriptedQuerier{responses: []jobclient.Status{
				pending("Working", 10),
				{Status: tt.status, State: jobclient.StateFailure},
			}}
			p := New(q, WithInterval(time.Millisecond), WithFailureMessage("Translation failed"))

			_, err := p.Poll(context.Background(), "abc", nil)
			var failed *JobFailedError
			require.True(t, errors.As(err, &failed))
			assert.Equal(t, tt.wantMsg, failed.Message)
			assert.Equal(t, "abc", failed.JobID)
		})
	}
}

func TestPoller_QueryErrorEndsLoop(t *testing.T) {
	boom := errors.New("connection refused")
	q := &scriptedQuerier{
		responses: []jobclient.Status{pending("Working", 10)},
		errAt:     3,
		err:       boom,
	}
	p := New(q, WithInterval(time.Millisecond))

	_, err := p.Poll(context.Background(), "abc", nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, q.Calls())
}

func TestPoller_RepeatedPendingIsSequential(t *testing.T) {
	responses := make([]jobclient.Status, 0, 21)
	for i := 0; i < 20; i++ {
		responses = append(responses, pending("Transcribing audio", 40))
	}
	responses = append(responses, jobclient.Status{Status: "Completed", Progress: 100, State: jobclient.StateSuccess})
	q := &scriptedQuerier{responses: responses}
	p := New(q, WithInterval(time.Millisecond))

	var updates int
	final, err := p.Poll(context.Background(), "abc", func(jobclient.Status) { updates++ })

	require.NoError(t, err)
	assert.Equal(t, jobclient.StateSuccess, final.State)
	assert.Equal(t, 21, updates)
	assert.Equal(t, 21, q.Calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&q.maxFlight))
}

func TestPoller_CancelStopsWaiting(t *testing.T) {
	q := &scriptedQuerier{responses: []jobclient.Status{pending("Working", 10)}}
	p := New(q, WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Poll(ctx, "abc", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return q.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancellation")
	}
	assert.Equal(t, 1, q.Calls())
}

func TestPoller_ResponseAfterCancelIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	querier := StatusFunc(func(context.Context, string) (jobclient.Status, error) {
		cancel()
		return jobclient.Status{State: jobclient.StateSuccess}, nil
	})
	p := New(querier)

	called := false
	_, err := p.Poll(ctx, "abc", func(jobclient.Status) { called = true })
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestNew_Defaults(t *testing.T) {
	p := New(StatusFunc(nil))
	assert.Equal(t, DefaultInterval, p.Interval())
	assert.Equal(t, DefaultFailureMessage, p.failureMessage)
}
