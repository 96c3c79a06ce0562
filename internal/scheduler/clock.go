package scheduler

import (
	"context"
	"time"
)

// Clock decides what "now" means for timers and how the scheduler waits
// for the next one.
type Clock interface {
	Now() time.Time
	// WaitUntil blocks until t has passed or ctx is done.
	WaitUntil(ctx context.Context, t time.Time) error
}

// RealClock uses wall-clock time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// VirtualClock jumps straight to the next timer, so sleeps cost nothing.
type VirtualClock struct {
	now time.Time
}

func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time { return c.now }

func (c *VirtualClock) WaitUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.After(c.now) {
		c.now = t
	}
	return nil
}
