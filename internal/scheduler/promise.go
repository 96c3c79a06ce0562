package scheduler

import "fmt"

// PromiseState is monotonic: Pending moves to Fulfilled or Rejected once.
type PromiseState int

const (
	Pending PromiseState = iota
	Fulfilled
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Promise is the eventual result of an async call or timer.
type Promise struct {
	ID uint64

	sched     *Scheduler
	state     PromiseState
	value     any // result, or rejection reason
	callbacks []func(*Promise)
	handled   bool
}

func (p *Promise) State() PromiseState { return p.state }
func (p *Promise) Settled() bool       { return p.state != Pending }

// Value is the fulfillment value or the rejection reason.
func (p *Promise) Value() any { return p.value }

func (p *Promise) String() string {
	return fmt.Sprintf("<promise #%d %s>", p.ID, p.state)
}

// OnSettle registers a continuation. It always runs from the ready queue,
// never inline, even when p has already settled.
func (p *Promise) OnSettle(fn func(*Promise)) {
	p.handled = true
	if p.Settled() {
		p.sched.Enqueue(func() { fn(p) })
		return
	}
	p.callbacks = append(p.callbacks, fn)
}

// Resolve fulfills p with v. A promise value is adopted: p settles the way
// v does. Settling an already settled promise is a no-op.
func (s *Scheduler) Resolve(p *Promise, v any) {
	if p.Settled() {
		return
	}
	if other, ok := v.(*Promise); ok {
		if other == p {
			s.Reject(p, fmt.Errorf("promise resolved with itself"))
			return
		}
		other.OnSettle(func(o *Promise) {
			if o.state == Fulfilled {
				s.Resolve(p, o.value)
			} else {
				s.Reject(p, o.value)
			}
		})
		return
	}
	s.settle(p, Fulfilled, v)
}

// Reject settles p as rejected with reason.
func (s *Scheduler) Reject(p *Promise, reason any) {
	if p.Settled() {
		return
	}
	s.settle(p, Rejected, reason)
	if !p.handled {
		s.unhandled = append(s.unhandled, p)
	}
}

func (s *Scheduler) settle(p *Promise, state PromiseState, v any) {
	p.state = state
	p.value = v
	callbacks := p.callbacks
	p.callbacks = nil
	for _, fn := range callbacks {
		fn := fn
		s.Enqueue(func() { fn(p) })
	}
	s.logger.Debug("promise settled", "id", p.ID, "state", state.String(), "continuations", len(callbacks))
}

// Resolved returns an already fulfilled promise.
func (s *Scheduler) Resolved(v any) *Promise {
	p := s.NewPromise()
	s.Resolve(p, v)
	return p
}

// All fulfills with the values of ps in order, or rejects with the first
// rejection.
func (s *Scheduler) All(ps []*Promise) *Promise {
	out := s.NewPromise()
	if len(ps) == 0 {
		s.Resolve(out, []any{})
		return out
	}
	values := make([]any, len(ps))
	remaining := len(ps)
	for i, p := range ps {
		i := i
		p.OnSettle(func(p *Promise) {
			if p.state == Rejected {
				s.Reject(out, p.value)
				return
			}
			values[i] = p.value
			remaining--
			if remaining == 0 {
				s.Resolve(out, values)
			}
		})
	}
	return out
}

// Race settles the way the first of ps to settle does.
func (s *Scheduler) Race(ps []*Promise) *Promise {
	out := s.NewPromise()
	for _, p := range ps {
		p.OnSettle(func(p *Promise) {
			if p.state == Fulfilled {
				s.Resolve(out, p.value)
			} else {
				s.Reject(out, p.value)
			}
		})
	}
	return out
}

// MarkHandled records that a consumer observed p's outcome, so a rejection
// is not reported as unhandled.
func (p *Promise) MarkHandled() { p.handled = true }
