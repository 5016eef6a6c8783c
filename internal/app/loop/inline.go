package loop

import (
	"context"
	"time"
)

// Inline is a Runner for tests: everything runs on the caller's goroutine.
// With Hold set, off-loop work is queued until Flush; timers always wait for Fire.
type Inline struct {
	Ctx  context.Context
	Hold bool
	// Started records the names passed to Go, in order.
	Started []string

	held   []func()
	timers []heldTimer
}

type heldTimer struct {
	d  time.Duration
	fn func()
}

func NewInline() *Inline {
	return &Inline{Ctx: context.Background()}
}

func (in *Inline) Post(fn func()) { fn() }

func (in *Inline) Go(name string, work func(ctx context.Context) func()) {
	in.Started = append(in.Started, name)
	run := func() {
		if apply := work(in.Ctx); apply != nil {
			apply()
		}
	}
	if in.Hold {
		in.held = append(in.held, run)
		return
	}
	run()
}

func (in *Inline) After(d time.Duration, fn func()) {
	in.timers = append(in.timers, heldTimer{d: d, fn: fn})
}

// Flush runs held work in submission order, including work queued while flushing.
func (in *Inline) Flush() int {
	n := 0
	for len(in.held) > 0 {
		next := in.held[0]
		in.held = in.held[1:]
		next()
		n++
	}
	return n
}

// Fire runs the timers pending at call time and returns how many ran.
func (in *Inline) Fire() int {
	pending := in.timers
	in.timers = nil
	for _, t := range pending {
		t.fn()
	}
	return len(pending)
}

// PendingTimers reports timers waiting for Fire.
func (in *Inline) PendingTimers() int { return len(in.timers) }

// LastDelay is the delay of the most recently scheduled timer.
func (in *Inline) LastDelay() time.Duration {
	if len(in.timers) == 0 {
		return 0
	}
	return in.timers[len(in.timers)-1].d
}
