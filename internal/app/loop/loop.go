// Package loop provides the single logical thread all call state lives on.
//
// Roster, chains and detectors are mutated only from functions running on the
// loop. Blocking collaborator calls run off the loop through Go and come back as
// continuations, which must re-check that their target still exists before
// applying anything.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Runner is what components use to schedule work.
type Runner interface {
	// Post schedules fn on the loop. It must not be called from the loop itself.
	Post(fn func())
	// Go runs work off the loop and applies the continuation it returns on the loop.
	// A nil continuation is allowed.
	Go(name string, work func(ctx context.Context) func())
	// After schedules fn on the loop once d has elapsed.
	After(d time.Duration, fn func())
}

type Loop struct {
	inbox  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	tasks  conc.WaitGroup
	logger zerolog.Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func New(parent context.Context, size int) *Loop {
	ctx, cancel := context.WithCancel(parent)
	return &Loop{
		inbox:  make(chan func(), size),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: log.With().Str("module", "app.loop").Logger(),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Run drains the inbox until the loop is closed.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.logger.Debug().Msg("loop ctx done")
			return
		case fn := <-l.inbox:
			Guard(l.logger, "loop", fn)
		}
	}
}

func (l *Loop) Post(fn func()) {
	select {
	case l.inbox <- fn:
	case <-l.ctx.Done():
	}
}

func (l *Loop) Go(name string, work func(ctx context.Context) func()) {
	l.tasks.Go(func() {
		var apply func()
		var pc panics.Catcher
		pc.Try(func() { apply = work(l.ctx) })
		if r := pc.Recovered(); r != nil {
			l.logger.Error().Str("task", name).Interface("panic", r.Value).Msg("task panicked")
			return
		}
		if apply != nil {
			l.Post(apply)
		}
	})
}

func (l *Loop) After(d time.Duration, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.Post(fn)
	})
	l.mu.Lock()
	l.timers[t] = struct{}{}
	l.mu.Unlock()
}

// Every posts fn on each tick until stop is called or the loop closes.
func (l *Loop) Every(d time.Duration, fn func(now time.Time)) (stop func()) {
	ctx, cancel := context.WithCancel(l.ctx)
	l.tasks.Go(func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Post(func() { fn(now) })
			}
		}
	})
	return cancel
}

// Forward posts every value received on ch to fn, in order, until ch is closed.
func Forward[T any](l *Loop, ch <-chan T, fn func(T)) {
	l.tasks.Go(func() {
		for {
			select {
			case <-l.ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				l.Post(func() { fn(v) })
			}
		}
	})
}

// Close stops the loop and waits for in-flight tasks to observe cancellation.
func (l *Loop) Close() {
	l.cancel()
	l.mu.Lock()
	for t := range l.timers {
		t.Stop()
	}
	clear(l.timers)
	l.mu.Unlock()
	l.tasks.Wait()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Guard runs fn and turns a panic into a log line, leaving the loop alive.
func Guard(logger zerolog.Logger, name string, fn func()) bool {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		logger.Error().Str("handler", name).Interface("panic", r.Value).Msg("handler panicked")
		return false
	}
	return true
}

// Await posts start onto the loop and blocks until it calls done or ctx ends.
func Await(ctx context.Context, r Runner, start func(done func(error))) error {
	ch := make(chan error, 1)
	r.Post(func() {
		start(func(err error) {
			select {
			case ch <- err:
			default:
			}
		})
	})
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query evaluates fn on the loop and returns its result.
func Query[T any](ctx context.Context, r Runner, fn func() T) (T, error) {
	ch := make(chan T, 1)
	r.Post(func() { ch <- fn() })
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
