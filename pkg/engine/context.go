package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/openfroyo/crate/pkg/config"
)

// ErrContextClosed is returned by PostEvent after the context was closed.
var ErrContextClosed = errors.New("engine: context closed")

var invalidNameChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

// Context is the single authority over a run's shared state: the event
// log, the abort flag and the step queue.
//
// Posted events are applied one at a time by a dedicated goroutine, so no
// two reactions ever run concurrently even though the steps producing the
// events run in parallel. Reactions only read the log and queue steps;
// they perform no I/O.
type Context struct {
	runID     string
	task      *config.ResolvedTask
	queue     *StepQueue
	listeners []Listener

	mu        sync.RWMutex
	log       []Event
	history   []Step
	withdrawn []Step
	violation error

	aborting atomic.Bool

	posts   chan postRequest
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

type postRequest struct {
	event Event
	done  chan error
}

// NewContext creates the context for one run of task and starts its event
// loop. Close must be called once the run is over.
func NewContext(runID string, task *config.ResolvedTask, queue *StepQueue, listeners ...Listener) *Context {
	c := &Context{
		runID:     runID,
		task:      task,
		queue:     queue,
		listeners: listeners,
		posts:     make(chan postRequest),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	go c.loop()

	return c
}

// Close stops the event loop. Pending PostEvent calls return ErrContextClosed.
func (c *Context) Close() {
	c.once.Do(func() {
		close(c.quit)
	})
	<-c.stopped
}

func (c *Context) loop() {
	defer close(c.stopped)

	for {
		select {
		case req := <-c.posts:
			req.done <- c.dispatch(req.event)
		case <-c.quit:
			return
		}
	}
}

// dispatch appends an event to the log, tells listeners and applies the
// event's reaction. It only ever runs on the event loop goroutine.
func (c *Context) dispatch(event Event) error {
	c.mu.Lock()
	c.log = append(c.log, event)
	c.mu.Unlock()

	for _, l := range c.listeners {
		l.OnEventPosted(event)
	}

	err := c.apply(event)
	if err != nil && IsInvariantViolation(err) {
		c.mu.Lock()
		if c.violation == nil {
			c.violation = err
		}
		c.mu.Unlock()
		c.abandonRun()
	}

	return err
}

// RunID returns the run's identifier.
func (c *Context) RunID() string {
	return c.runID
}

// Task returns the resolved task being run.
func (c *Context) Task() *config.ResolvedTask {
	return c.task
}

// QueueStep appends a step to the queue. Forward-progress steps are
// refused once the run is aborting; QueueStep reports whether the step
// was queued. The abort check and the push are atomic with respect to
// setAborting. Safe for concurrent use.
func (c *Context) QueueStep(step Step) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsAborting() && step.Kind().IsForwardProgress() {
		return false
	}

	c.history = append(c.history, step)
	return c.queue.Push(step)
}

// PostEvent appends event to the log and applies its reaction before
// returning. Calls from any number of goroutines are serialized. The
// returned error is non-nil only for an invariant violation or a closed
// context.
func (c *Context) PostEvent(event Event) error {
	req := postRequest{event: event, done: make(chan error, 1)}

	select {
	case c.posts <- req:
	case <-c.stopped:
		return ErrContextClosed
	}

	return <-req.done
}

// SinglePastEventOfKind returns the only event of the given kind, or nil
// if there is none. More than one is an invariant violation.
func (c *Context) SinglePastEventOfKind(kind EventKind) (Event, error) {
	events := c.PastEventsOfKind(kind)

	switch len(events) {
	case 0:
		return nil, nil
	case 1:
		return events[0], nil
	default:
		return nil, &InvariantViolation{
			Message: "expected at most one event of this kind",
			Kind:    kind,
			Count:   len(events),
		}
	}
}

// PastEventsOfKind returns every logged event of the given kind, oldest first.
func (c *Context) PastEventsOfKind(kind EventKind) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var events []Event
	for _, e := range c.log {
		if e.Kind() == kind {
			events = append(events, e)
		}
	}
	return events
}

// Events returns a snapshot of the event log.
func (c *Context) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Event, len(c.log))
	copy(out, c.log)
	return out
}

// QueuedSteps returns every step queued so far, oldest first.
func (c *Context) QueuedSteps() []Step {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Step, len(c.history))
	copy(out, c.history)
	return out
}

// PastStepsOfKind returns every step of the given kind queued so far.
func (c *Context) PastStepsOfKind(kind StepKind) []Step {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var steps []Step
	for _, s := range c.history {
		if s.Kind() == kind {
			steps = append(steps, s)
		}
	}
	return steps
}

// ContainerByName looks up one of the run's containers.
func (c *Context) ContainerByName(name string) (*config.Container, bool) {
	return c.task.Container(name)
}

// AllTaskContainers returns the run's containers, dependencies first.
func (c *Context) AllTaskContainers() []*config.Container {
	return c.task.Containers
}

// TaskContainer returns the container that runs the task.
func (c *Context) TaskContainer() *config.Container {
	return c.task.TaskContainer
}

// CommandForContainer returns the command to run in container: the task's
// explicit command for the task container, otherwise the container's own
// command. Empty means the image default.
func (c *Context) CommandForContainer(container *config.Container) []string {
	if container.Name == c.task.TaskContainer.Name && len(c.task.Task.Run.Command) > 0 {
		return c.task.Task.Run.Command
	}
	return container.Command
}

// IsAborting reports whether the run is aborting. Once true it stays true.
func (c *Context) IsAborting() bool {
	return c.aborting.Load()
}

// setAborting raises the abort flag and withdraws every forward-progress
// step no worker has claimed yet. Claimed steps finish normally.
func (c *Context) setAborting() {
	c.mu.Lock()
	c.aborting.Store(true)
	c.mu.Unlock()

	steps := c.queue.Withdraw(func(s Step) bool { return s.Kind().IsForwardProgress() })
	if len(steps) == 0 {
		return
	}

	c.mu.Lock()
	c.withdrawn = append(c.withdrawn, steps...)
	c.mu.Unlock()
}

// WithdrawnSteps returns the queued steps that were never run because the
// run aborted first.
func (c *Context) WithdrawnSteps() []Step {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Step, len(c.withdrawn))
	copy(out, c.withdrawn)
	return out
}

// Violation returns the first invariant violation seen, if any.
func (c *Context) Violation() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.violation
}

// NetworkName is the name of the run's network. Container names derive from it.
func (c *Context) NetworkName() string {
	id := c.runID
	if len(id) > 8 {
		id = id[:8]
	}
	return sanitizeName(fmt.Sprintf("%s-%s-%s", c.task.Project, c.task.Task.Name, id))
}

// ContainerName is the runtime name for one of the run's containers.
func (c *Context) ContainerName(container *config.Container) string {
	return c.NetworkName() + "-" + sanitizeName(container.Name)
}

// ImageTag is the tag given to an image built from source: the project
// name and the first container using the source.
func (c *Context) ImageTag(source config.BuildImage) string {
	name := "image"
	for _, ctr := range c.task.Containers {
		if ctr.Image.Key() == source.Key() {
			name = ctr.Name
			break
		}
	}
	return sanitizeName(c.task.Project+"-"+name) + ":latest"
}

func (c *Context) notifyStepStarting(step Step) {
	for _, l := range c.listeners {
		l.OnStepStarting(step)
	}
}

func sanitizeName(s string) string {
	s = invalidNameChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-.")
}
