package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/MimeLyc/subtitle-studio/internal/jobclient"
	"github.com/MimeLyc/subtitle-studio/internal/notify"
	"github.com/MimeLyc/subtitle-studio/internal/poller"
	"github.com/MimeLyc/subtitle-studio/pkg/log"
)

// View is the UI bundle one controller drives: progress text and bar,
// result container and download link.
type View interface {
	// ShowProgress hides the input form and shows the progress area.
	ShowProgress()
	UpdateProgress(message string, percent int)
	// ShowResult hides progress and reveals the download link.
	ShowResult(downloadPath string)
	// Reset restores the pre-submission layout.
	Reset()
}

// Notifier shows transient messages in a UI region. It is called outside the
// controller's state lock, so subscribers may read JobID, Artifact or Current.
// They must not start or invalidate the same controller.
type Notifier interface {
	Show(region string, level notify.Level, msg string) notify.Notice
}

// Poller runs a status loop for one job id.
type Poller interface {
	Poll(ctx context.Context, id string, onUpdate poller.UpdateFunc) (jobclient.Status, error)
}

// SubmitFunc performs the single submission request and returns the job id.
type SubmitFunc[T any] func(ctx context.Context, input T) (string, error)

// Labels are the messages a controller renders around submission.
type Labels struct {
	Submitting        string
	SubmittingPercent int
	Submitted         string
	SubmittedPercent  int
	// SubmitError and PollError are fmt formats taking the error message.
	SubmitError string
	PollError   string
}

type Config[T any] struct {
	Name     string
	Region   string
	Kind     jobclient.Kind
	Validate func(T) error
	Submit   SubmitFunc[T]
	Poller   Poller
	View     View
	Notifier Notifier
	Labels   Labels
	// OnBegin runs once input has passed validation, right before the run
	// supersedes the slot's previous one.
	OnBegin func()
}

// Job is the client-side record of the job a controller is tracking.
type Job struct {
	ID              string
	Kind            jobclient.Kind
	State           jobclient.State
	StatusMessage   string
	ProgressPercent int
}

// Result is what a successful run produces.
type Result struct {
	JobID        string
	DownloadPath string
	Status       jobclient.Status
}

// Controller runs validate → submit → poll → reveal for one slot. Starting a
// run cancels the slot's previous run; a superseded run never touches the
// view or the notifier again.
type Controller[T any] struct {
	cfg Config[T]

	// uiMu serializes view and notifier calls; mu guards the fields below.
	uiMu     sync.Mutex
	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	jobID    string
	artifact string
	job      *Job
}

func NewController[T any](cfg Config[T]) *Controller[T] {
	if cfg.Validate == nil {
		cfg.Validate = func(T) error { return nil }
	}
	if cfg.Labels.SubmitError == "" {
		cfg.Labels.SubmitError = "Request failed: %s"
	}
	if cfg.Labels.PollError == "" {
		cfg.Labels.PollError = "Processing error: %s"
	}
	return &Controller[T]{cfg: cfg}
}

// Run starts a flow and waits for it to finish.
func (c *Controller[T]) Run(ctx context.Context, input T) (Result, error) {
	return c.Start(ctx, input).Wait()
}

// Start validates input synchronously, supersedes any in-flight run, and
// continues submission and polling in the background.
func (c *Controller[T]) Start(ctx context.Context, input T) *Task {
	task := newTask()

	if err := c.cfg.Validate(input); err != nil {
		c.cfg.Notifier.Show(c.cfg.Region, notify.LevelError, err.Error())
		task.finish(Result{}, err)
		return task
	}

	if c.cfg.OnBegin != nil {
		c.cfg.OnBegin()
	}
	runCtx, cancel, gen := c.begin(ctx)
	go func() {
		defer cancel()
		res, err := c.run(runCtx, gen, input)
		c.end(gen)
		task.finish(res, err)
	}()
	return task
}

func (c *Controller[T]) run(ctx context.Context, gen uint64, input T) (Result, error) {
	labels := c.cfg.Labels
	c.apply(gen, nil, func() {
		c.cfg.View.ShowProgress()
		c.cfg.View.UpdateProgress(labels.Submitting, labels.SubmittingPercent)
	})

	id, err := c.cfg.Submit(ctx, input)
	if err != nil {
		return Result{}, c.fail(ctx, gen, labels.SubmitError, err)
	}

	c.apply(gen, func() {
		c.jobID = id
		c.job = &Job{
			ID:              id,
			Kind:            c.cfg.Kind,
			State:           jobclient.StatePending,
			StatusMessage:   labels.Submitted,
			ProgressPercent: labels.SubmittedPercent,
		}
	}, func() {
		c.cfg.View.UpdateProgress(labels.Submitted, labels.SubmittedPercent)
	})
	log.Info("%s job %s submitted", c.cfg.Name, id)

	final, err := c.cfg.Poller.Poll(ctx, id, func(st jobclient.Status) {
		c.apply(gen, func() {
			if c.job != nil {
				c.job.State = clientState(st.State)
				c.job.StatusMessage = st.Status
				c.job.ProgressPercent = st.Percent()
			}
		}, func() {
			c.cfg.View.UpdateProgress(st.Status, st.Percent())
		})
	})
	if err != nil {
		return Result{}, c.fail(ctx, gen, labels.PollError, err)
	}

	res := Result{
		JobID:        id,
		DownloadPath: jobclient.DownloadPath(id),
		Status:       final,
	}
	c.apply(gen, func() {
		c.job = nil
		c.artifact = id
	}, func() {
		c.cfg.View.ShowResult(res.DownloadPath)
	})
	log.Info("%s job %s finished", c.cfg.Name, id)
	return res, nil
}

// fail rolls the view back and shows one error notice, unless the run was
// cancelled or superseded.
func (c *Controller[T]) fail(ctx context.Context, gen uint64, format string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	c.apply(gen, func() {
		c.job = nil
	}, func() {
		c.cfg.View.Reset()
		c.cfg.Notifier.Show(c.cfg.Region, notify.LevelError, fmt.Sprintf(format, err.Error()))
	})
	log.Warn("%s flow failed: %v", c.cfg.Name, err)
	return err
}

func (c *Controller[T]) begin(parent context.Context) (context.Context, context.CancelFunc, uint64) {
	ctx, cancel := context.WithCancel(parent)

	c.uiMu.Lock()
	defer c.uiMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	c.cancel = cancel
	c.jobID = ""
	c.artifact = ""
	c.job = nil
	return ctx, cancel, c.gen
}

func (c *Controller[T]) end(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.cancel = nil
	}
}

// apply runs update under the state lock and then ui outside it, both only
// while gen is still the slot's current run. Either may be nil.
func (c *Controller[T]) apply(gen uint64, update, ui func()) {
	c.uiMu.Lock()
	defer c.uiMu.Unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if update != nil {
		update()
	}
	c.mu.Unlock()

	if ui != nil {
		ui()
	}
}

// clientState folds every non-terminal server state, such as PROCESSING or
// RUNNING, into PENDING.
func clientState(s jobclient.State) jobclient.State {
	if s.Terminal() {
		return s
	}
	return jobclient.StatePending
}

// Invalidate cancels any in-flight run, forgets the slot's identifiers and
// restores the pre-submission layout.
func (c *Controller[T]) Invalidate() {
	c.uiMu.Lock()
	defer c.uiMu.Unlock()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.jobID = ""
	c.artifact = ""
	c.job = nil
	c.mu.Unlock()

	c.cfg.View.Reset()
}

// JobID is the id returned by the latest successful submission.
func (c *Controller[T]) JobID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobID
}

// Artifact is the id of the latest job that reached SUCCESS.
func (c *Controller[T]) Artifact() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// Current returns the job being polled, if any.
func (c *Controller[T]) Current() (Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return Job{}, false
	}
	return *c.job, true
}

// Running reports whether a run is in flight.
func (c *Controller[T]) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Task is a handle on a background run.
type Task struct {
	done   chan struct{}
	result Result
	err    error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) finish(res Result, err error) {
	t.result = res
	t.err = err
	close(t.done)
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Wait() (Result, error) {
	<-t.done
	return t.result, t.err
}
