package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newVirtual(opts ...Option) (*Scheduler, *VirtualClock) {
	clock := NewVirtualClock(epoch)
	return New(append([]Option{WithClock(clock)}, opts...)...), clock
}

func rejected(s *Scheduler, reason any) *Promise {
	p := s.NewPromise()
	s.Reject(p, reason)
	return p
}

func TestReadyQueueIsFIFO(t *testing.T) {
	s, _ := newVirtual()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		s.Enqueue(func() {
			order = append(order, i)
			if i == 1 {
				s.Enqueue(func() { order = append(order, 4) })
			}
		})
	}
	s.RunReady()
	assert.Equal(t, []int{1, 2, 3, 4}, order)
	assert.True(t, s.Idle())
}

func TestTimersOrderByDueThenRegistration(t *testing.T) {
	s, clock := newVirtual()
	var order []string
	s.After(2*time.Second, func() { order = append(order, "late") })
	s.After(time.Second, func() { order = append(order, "a") })
	s.After(time.Second, func() { order = append(order, "b") })
	s.After(0, func() { order = append(order, "now") })

	s.RunReady()
	assert.Equal(t, []string{"now"}, order)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"now", "a", "b", "late"}, order)
	assert.Equal(t, epoch.Add(2*time.Second), clock.Now())
}

func TestPromiseStateIsMonotonic(t *testing.T) {
	s, _ := newVirtual()
	p := s.NewPromise()
	assert.Equal(t, Pending, p.State())

	s.Resolve(p, 1)
	s.Reject(p, "late")
	s.Resolve(p, 2)
	assert.Equal(t, Fulfilled, p.State())
	assert.Equal(t, 1, p.Value())
}

func TestOnSettleRunsFromQueue(t *testing.T) {
	s, _ := newVirtual()
	p := s.Resolved("v")
	var got any
	p.OnSettle(func(p *Promise) { got = p.Value() })
	assert.Nil(t, got)
	s.RunReady()
	assert.Equal(t, "v", got)
}

func TestResolveAdoptsPromise(t *testing.T) {
	s, _ := newVirtual()
	inner := s.NewPromise()
	outer := s.NewPromise()
	s.Resolve(outer, inner)
	assert.Equal(t, Pending, outer.State())

	s.Reject(inner, "no")
	s.RunReady()
	assert.Equal(t, Rejected, outer.State())
	assert.Equal(t, "no", outer.Value())
}

func TestSpawnWithoutAwaitSettlesSynchronously(t *testing.T) {
	s, _ := newVirtual()
	p := s.Spawn(func(t *Task) (any, error) { return 42, nil })
	assert.Equal(t, Fulfilled, p.State())
	assert.Equal(t, 42, p.Value())
	assert.True(t, s.Idle())
}

func TestSpawnFailureRejects(t *testing.T) {
	s, _ := newVirtual()
	boom := errors.New("boom")
	p := s.Spawn(func(t *Task) (any, error) { return nil, boom })
	assert.Equal(t, Rejected, p.State())
	assert.Equal(t, boom, p.Value())
}

func TestAwaitSuspendsAndResumes(t *testing.T) {
	s, _ := newVirtual()
	var trace []string
	var task *Task

	p := s.Spawn(func(tk *Task) (any, error) {
		task = tk
		trace = append(trace, "start")
		v, rejected := tk.Await(s.Sleep(time.Second))
		assert.False(t, rejected)
		assert.Nil(t, v)
		trace = append(trace, "after sleep")
		return "done", nil
	})
	trace = append(trace, "spawn returned")

	assert.Equal(t, Pending, p.State())
	assert.Equal(t, Suspended, task.State())
	assert.Equal(t, 1, s.Suspended())

	require.NoError(t, s.RunUntil(context.Background(), p))
	assert.Equal(t, []string{"start", "spawn returned", "after sleep"}, trace)
	assert.Equal(t, "done", p.Value())
	assert.Equal(t, Completed, task.State())
	assert.Equal(t, 0, s.Suspended())
}

func TestAwaitSettledDoesNotYield(t *testing.T) {
	s, _ := newVirtual()
	p := s.Spawn(func(tk *Task) (any, error) {
		v, _ := tk.Await(s.Resolved(7))
		return v, nil
	})
	assert.Equal(t, Fulfilled, p.State())
	assert.Equal(t, 7, p.Value())
}

func TestAwaitRejected(t *testing.T) {
	s, _ := newVirtual()
	src := s.NewPromise()
	p := s.Spawn(func(tk *Task) (any, error) {
		v, rejected := tk.Await(src)
		if rejected {
			return nil, errors.New(v.(string))
		}
		return v, nil
	})
	s.Reject(src, "bad")
	s.RunReady()
	assert.Equal(t, Rejected, p.State())
	assert.EqualError(t, p.Value().(error), "bad")
}

func TestHandoffHookBracketsTaskRuns(t *testing.T) {
	current := "main"
	var seen []string
	s, _ := newVirtual(WithHandoffHook(func() func() {
		saved := current
		return func() { current = saved }
	}))

	p := s.Spawn(func(tk *Task) (any, error) {
		current = "task"
		tk.Await(s.Sleep(0))
		seen = append(seen, current)
		current = "task"
		return nil, nil
	})
	assert.Equal(t, "main", current)

	current = "other"
	require.NoError(t, s.RunUntil(context.Background(), p))
	assert.Equal(t, "other", current)
	assert.Equal(t, []string{"other"}, seen)
}

func TestRunUntilDeadlock(t *testing.T) {
	s, _ := newVirtual()
	never := s.NewPromise()
	err := s.RunUntil(context.Background(), never)
	assert.ErrorIs(t, err, ErrDeadlock)
}

func TestRunRespectsContext(t *testing.T) {
	s := New()
	s.After(time.Hour, func() {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
}

func TestCloseAbortsSuspendedTasks(t *testing.T) {
	s, _ := newVirtual()
	var reason any
	p := s.Spawn(func(tk *Task) (any, error) {
		v, rejected := tk.Await(s.NewPromise())
		if rejected {
			reason = v
			// awaiting again after close fails immediately
			v, rejected = tk.Await(s.NewPromise())
			assert.True(t, rejected)
			return nil, v.(error)
		}
		return nil, nil
	})
	s.Close()
	assert.Equal(t, ErrAborted, reason)
	assert.Equal(t, Rejected, p.State())
	assert.Equal(t, 0, s.Suspended())
}

func TestAllAndRace(t *testing.T) {
	s, _ := newVirtual()
	slow := s.Sleep(2 * time.Second)
	fast := s.NewPromise()
	s.After(time.Second, func() { s.Resolve(fast, "fast") })

	all := s.All([]*Promise{s.Resolved(1), fast})
	race := s.Race([]*Promise{slow, fast})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []any{1, "fast"}, all.Value())
	assert.Equal(t, "fast", race.Value())

	empty := s.All(nil)
	assert.Equal(t, []any{}, empty.Value())
}

func TestAllRejectsOnFirstFailure(t *testing.T) {
	s, _ := newVirtual()
	all := s.All([]*Promise{s.Sleep(time.Second), rejected(s, "x")})
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, Rejected, all.State())
	assert.Equal(t, "x", all.Value())
}

func TestTimeout(t *testing.T) {
	s, _ := newVirtual()
	never := s.NewPromise()
	p := s.Timeout(never, time.Second, "timeout")
	quick := s.Timeout(s.Sleep(0), time.Second, "timeout")

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, Rejected, p.State())
	assert.Equal(t, "timeout", p.Value())
	assert.Equal(t, Fulfilled, quick.State())
}

func TestTimeoutDropsDeadlineOnceSettled(t *testing.T) {
	s, clock := newVirtual()
	p := s.Timeout(s.Sleep(0), time.Hour, "timeout")

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, Fulfilled, p.State())
	assert.True(t, s.Idle())
	assert.Equal(t, epoch, clock.Now(), "run waited for a dead deadline")
}

func TestTimeoutDoesNotHoldRealClock(t *testing.T) {
	s := New()
	p := s.Timeout(s.Sleep(0), 3*time.Second, "timeout")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, s.Run(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Fulfilled, p.State())
}

func TestTimerStop(t *testing.T) {
	s, _ := newVirtual()
	fired := 0
	first := s.After(time.Second, func() { fired++ })
	s.After(2*time.Second, func() { fired += 10 })

	assert.True(t, first.Stop())
	assert.False(t, first.Stop())
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 10, fired)
}

func TestUnhandledRejectionIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s, _ := newVirtual(WithLogger(logger))

	rejected(s, "lost")
	handled := rejected(s, "seen")
	handled.OnSettle(func(*Promise) {})

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, buf.String(), "unhandled promise rejection")
	assert.Contains(t, buf.String(), "reason=lost")
	assert.NotContains(t, buf.String(), "reason=seen")
}
