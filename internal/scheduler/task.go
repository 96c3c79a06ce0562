package scheduler

import (
	"errors"
	"fmt"
)

// TaskState tracks one async call through its life.
type TaskState int

const (
	Running TaskState = iota
	Suspended
	Resumed
	Completed
	Failed
)

func (s TaskState) String() string {
	switch s {
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Resumed:
		return "resumed"
	case Completed:
		return "completed"
	default:
		return "failed"
	}
}

// ErrAborted is the rejection a suspended task sees when the scheduler is
// closed before its promise settles.
var ErrAborted = errors.New("task aborted: scheduler closed")

// Body is the code of an async call. Its error becomes the rejection reason.
type Body func(t *Task) (any, error)

// Task is one async call frame. Its body runs on its own goroutine but
// only while holding the baton: whoever starts or resumes the task blocks
// until the task suspends again or finishes, so exactly one body runs at
// any time.
type Task struct {
	ID      uint64
	Promise *Promise

	sched  *Scheduler
	state  TaskState
	resume chan bool // true aborts
	yield  chan struct{}
}

func (t *Task) State() TaskState { return t.state }

// Spawn starts body as a new task and runs it up to its first suspension.
// The returned promise is already settled when the body never suspends.
func (s *Scheduler) Spawn(body Body) *Promise {
	s.nextID++
	t := &Task{
		ID:      s.nextID,
		Promise: s.NewPromise(),
		sched:   s,
		state:   Running,
		resume:  make(chan bool),
		yield:   make(chan struct{}),
	}
	s.logger.Debug("task spawned", "task", t.ID)

	restore := s.handoff()
	go t.run(body)
	<-t.yield
	restore()
	return t.Promise
}

func (t *Task) run(body Body) {
	defer close(t.yield)
	defer func() {
		if r := recover(); r != nil {
			t.state = Failed
			t.sched.Reject(t.Promise, fmt.Errorf("panic in task %d: %v", t.ID, r))
		}
	}()

	v, err := body(t)
	if err != nil {
		t.state = Failed
		t.sched.Reject(t.Promise, err)
		t.sched.logger.Debug("task failed", "task", t.ID, "error", err)
		return
	}
	t.state = Completed
	t.sched.Resolve(t.Promise, v)
	t.sched.logger.Debug("task completed", "task", t.ID)
}

// Await returns p's outcome. A settled promise answers at once without
// yielding; a pending one suspends the task until p settles. rejected
// reports whether v is a rejection reason.
func (t *Task) Await(p *Promise) (v any, rejected bool) {
	if !p.Settled() {
		if t.sched.closed {
			return ErrAborted, true
		}
		t.state = Suspended
		t.sched.suspended[t] = struct{}{}
		p.OnSettle(func(*Promise) { t.sched.resumeTask(t, false) })
		t.sched.logger.Debug("task suspended", "task", t.ID, "awaiting", p.ID)

		t.yield <- struct{}{}
		if abort := <-t.resume; abort {
			t.state = Running
			return ErrAborted, true
		}
		t.state = Running
	}
	return p.value, p.state == Rejected
}

func (s *Scheduler) resumeTask(t *Task, abort bool) {
	if t.state != Suspended {
		return
	}
	delete(s.suspended, t)
	t.state = Resumed
	s.logger.Debug("task resumed", "task", t.ID, "abort", abort)

	restore := s.handoff()
	t.resume <- abort
	<-t.yield
	restore()
}
