// Package poller repeatedly queries a job's status until it reaches a
// terminal state.
//
// Queries are strictly sequential: the next one is scheduled only after the
// previous response has been handled, so a loop never has more than one
// request or timer outstanding. A loop runs until SUCCESS, FAILURE, a query
// error, or cancellation of its context.
package poller

import (
	"context"
	"time"

	"github.com/MimeLyc/subtitle-studio/internal/jobclient"
	"github.com/MimeLyc/subtitle-studio/pkg/log"
)

const (
	DefaultInterval       = 5 * time.Second
	DefaultFailureMessage = "Processing failed"
)

// StatusQuerier is the single-shot status call the loop repeats.
type StatusQuerier interface {
	Status(ctx context.Context, id string) (jobclient.Status, error)
}

// StatusFunc adapts a function to StatusQuerier.
type StatusFunc func(ctx context.Context, id string) (jobclient.Status, error)

func (f StatusFunc) Status(ctx context.Context, id string) (jobclient.Status, error) {
	return f(ctx, id)
}

// UpdateFunc receives every status response, terminal or not.
type UpdateFunc func(jobclient.Status)

type Poller struct {
	querier        StatusQuerier
	interval       time.Duration
	failureMessage string
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFailureMessage sets the error text used when a FAILURE status carries
// no message of its own.
func WithFailureMessage(msg string) Option {
	return func(p *Poller) {
		if msg != "" {
			p.failureMessage = msg
		}
	}
}

func New(querier StatusQuerier, opts ...Option) *Poller {
	p := &Poller{
		querier:        querier,
		interval:       DefaultInterval,
		failureMessage: DefaultFailureMessage,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Poll queries id until it is terminal. It returns the final status on
// SUCCESS, a *JobFailedError on FAILURE, the query error if a request fails,
// or ctx.Err() once ctx is cancelled.
func (p *Poller) Poll(ctx context.Context, id string, onUpdate UpdateFunc) (jobclient.Status, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return jobclient.Status{}, err
		}

		st, err := p.querier.Status(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return jobclient.Status{}, ctxErr
			}
			log.Debug("Status query %d for %s failed: %v", attempt, id, err)
			return jobclient.Status{}, err
		}
		// a response that lands after cancellation belongs to a stale loop
		if err := ctx.Err(); err != nil {
			return jobclient.Status{}, err
		}

		if onUpdate != nil {
			onUpdate(st)
		}

		switch st.State {
		case jobclient.StateSuccess:
			return st, nil
		case jobclient.StateFailure:
			msg := st.Status
			if msg == "" {
				msg = p.failureMessage
			}
			return st, &JobFailedError{JobID: id, Message: msg}
		}

		if timer == nil {
			timer = time.NewTimer(p.interval)
		} else {
			timer.Reset(p.interval)
		}
		select {
		case <-ctx.Done():
			return jobclient.Status{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// JobFailedError is returned when the server reports FAILURE.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return e.Message
}
