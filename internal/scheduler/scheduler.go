package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrDeadlock is returned when a promise is awaited but no queued job or
// timer is left that could ever settle it.
var ErrDeadlock = errors.New("deadlock: awaited promise can never settle")

// Scheduler is a single-threaded cooperative scheduler: one FIFO queue of
// ready continuations plus a timer heap. It is not safe for concurrent use;
// each interpreter owns one.
type Scheduler struct {
	clock  Clock
	logger *slog.Logger

	ready  []func()
	timers timerHeap
	seq    uint64
	nextID uint64

	suspended map[*Task]struct{}
	unhandled []*Promise
	closed    bool

	// hook brackets every baton handoff to a task; see WithHandoffHook.
	hook func() func()
}

type Option func(*Scheduler)

// WithClock selects the timer clock. The default is RealClock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithHandoffHook installs fn, called right before control passes to a
// task. The function it returns runs when control comes back, letting the
// owner save and restore per-task state such as its call stack.
func WithHandoffHook(fn func() (restore func())) Option {
	return func(s *Scheduler) { s.hook = fn }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:     RealClock{},
		logger:    slog.New(slog.DiscardHandler),
		suspended: make(map[*Task]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Clock() Clock { return s.clock }

func (s *Scheduler) NewPromise() *Promise {
	s.nextID++
	return &Promise{ID: s.nextID, sched: s}
}

func (s *Scheduler) handoff() func() {
	if s.hook == nil {
		return func() {}
	}
	return s.hook()
}

// Enqueue appends a job to the ready queue.
func (s *Scheduler) Enqueue(job func()) {
	s.ready = append(s.ready, job)
}

// Timer is a pending After registration.
type Timer struct {
	s *Scheduler
	t *timer
}

// Stop cancels the timer. It reports false if the timer already fired or
// was stopped.
func (t *Timer) Stop() bool {
	if t.t.index < 0 {
		return false
	}
	heap.Remove(&t.s.timers, t.t.index)
	return true
}

// After runs job from the ready queue once d has elapsed on the clock.
// Timers due at the same instant fire in registration order.
func (s *Scheduler) After(d time.Duration, job func()) *Timer {
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &timer{due: s.clock.Now().Add(d), seq: s.seq, job: job}
	heap.Push(&s.timers, t)
	return &Timer{s: s, t: t}
}

// Sleep returns a promise fulfilled with nil after d.
func (s *Scheduler) Sleep(d time.Duration) *Promise {
	p := s.NewPromise()
	s.After(d, func() { s.Resolve(p, nil) })
	return p
}

// Timeout settles like p, or rejects with reason if d elapses first. The
// deadline timer is dropped once p settles, so it never keeps Run waiting.
func (s *Scheduler) Timeout(p *Promise, d time.Duration, reason any) *Promise {
	deadline := s.NewPromise()
	t := s.After(d, func() { s.Reject(deadline, reason) })
	p.OnSettle(func(*Promise) { t.Stop() })
	return s.Race([]*Promise{p, deadline})
}

// Idle reports whether no job or timer is left.
func (s *Scheduler) Idle() bool {
	return len(s.ready) == 0 && s.timers.Len() == 0
}

// Suspended is the number of tasks parked on a pending promise.
func (s *Scheduler) Suspended() int { return len(s.suspended) }

// RunReady drains the ready queue, firing timers that are already due,
// without waiting for future timers.
func (s *Scheduler) RunReady() {
	for {
		s.fireDue()
		if len(s.ready) == 0 {
			return
		}
		s.runOne()
	}
}

// Run drives the scheduler to quiescence, waiting on the clock for pending
// timers. Tasks still suspended afterwards wait on promises nothing will
// settle.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.RunReady()
		if s.Idle() {
			s.reportUnhandled()
			return nil
		}
		if err := s.clock.WaitUntil(ctx, s.timers[0].due); err != nil {
			return err
		}
	}
}

// RunUntil pumps the scheduler until p settles.
func (s *Scheduler) RunUntil(ctx context.Context, p *Promise) error {
	for !p.Settled() {
		if len(s.ready) > 0 {
			s.runOne()
			continue
		}
		if s.fireDue() {
			continue
		}
		if s.timers.Len() == 0 {
			return ErrDeadlock
		}
		if err := s.clock.WaitUntil(ctx, s.timers[0].due); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) runOne() {
	job := s.ready[0]
	s.ready[0] = nil
	s.ready = s.ready[1:]
	job()
}

// fireDue moves every due timer's job onto the ready queue.
func (s *Scheduler) fireDue() bool {
	fired := false
	now := s.clock.Now()
	for s.timers.Len() > 0 && !s.timers[0].due.After(now) {
		t := heap.Pop(&s.timers).(*timer)
		s.logger.Debug("timer fired", "seq", t.seq)
		s.Enqueue(t.job)
		fired = true
	}
	return fired
}

func (s *Scheduler) reportUnhandled() {
	for _, p := range s.unhandled {
		if !p.handled {
			s.logger.Warn("unhandled promise rejection", "promise", p.ID, "reason", p.value)
			p.handled = true
		}
	}
	s.unhandled = nil
}

// Close aborts every suspended task so its goroutine unwinds and exits.
// Awaiting after Close fails at once with ErrAborted.
func (s *Scheduler) Close() {
	s.closed = true
	for len(s.suspended) > 0 {
		for t := range s.suspended {
			s.resumeTask(t, true)
			break
		}
	}
	s.ready = nil
	for _, t := range s.timers {
		t.index = -1
	}
	s.timers = nil
}

type timer struct {
	due   time.Time
	seq   uint64
	job   func()
	index int // position in the heap, -1 once removed
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
