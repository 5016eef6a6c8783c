package orch

import (
	"context"
	"time"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// Controller is the goroutine-safe face of a call. Every method hops onto the
// loop that owns the Orchestrator and waits for the result or ctx.
type Controller struct {
	loop *loop.Loop
	orch *Orchestrator
}

// NewController builds the session on its own loop and starts the loop.
// d.Tasks, d.Bind and d.Every are overwritten.
func NewController(ctx context.Context, d Deps, opt Options) *Controller {
	l := loop.New(ctx, 256)
	d.Tasks = l
	d.Bind = func(events <-chan domain.Event, handle func(domain.Event)) {
		loop.Forward(l, events, handle)
	}
	d.Every = l.Every
	c := &Controller{loop: l, orch: New(d, opt)}
	go l.Run()
	return c
}

func (c *Controller) Init(ctx context.Context) error {
	return loop.Await(ctx, c.loop, c.orch.InitializeCall)
}

func (c *Controller) Join(ctx context.Context, room domain.RoomID) (JoinResult, error) {
	var res JoinResult
	err := loop.Await(ctx, c.loop, func(done func(error)) {
		c.orch.JoinRoom(room, func(r JoinResult, err error) {
			res = r
			done(err)
		})
	})
	return res, err
}

func (c *Controller) Leave(ctx context.Context) error {
	return loop.Await(ctx, c.loop, c.orch.LeaveRoom)
}

func (c *Controller) End(ctx context.Context) error {
	return loop.Await(ctx, c.loop, c.orch.EndCall)
}

func (c *Controller) SetMuted(ctx context.Context, muted bool) error {
	_, err := loop.Query(ctx, c.loop, func() struct{} {
		c.orch.SetMuted(muted)
		return struct{}{}
	})
	return err
}

func (c *Controller) ToggleMute(ctx context.Context) (bool, error) {
	return loop.Query(ctx, c.loop, c.orch.ToggleMute)
}

func (c *Controller) SetDeafened(ctx context.Context, deafened bool) error {
	_, err := loop.Query(ctx, c.loop, func() struct{} {
		c.orch.SetDeafened(deafened)
		return struct{}{}
	})
	return err
}

func (c *Controller) ToggleDeafen(ctx context.Context) (bool, error) {
	return loop.Query(ctx, c.loop, c.orch.ToggleDeafen)
}

func (c *Controller) SetVolume(ctx context.Context, uid domain.UserID, v int) (int, error) {
	return loop.Query(ctx, c.loop, func() int { return c.orch.SetVolume(uid, v) })
}

func (c *Controller) SetPeerMuted(ctx context.Context, uid domain.UserID, muted bool) error {
	_, err := loop.Query(ctx, c.loop, func() struct{} {
		c.orch.SetPeerMuted(uid, muted)
		return struct{}{}
	})
	return err
}

func (c *Controller) SetCamera(ctx context.Context, enabled bool) error {
	return loop.Await(ctx, c.loop, func(done func(error)) { c.orch.SetCamera(enabled, done) })
}

func (c *Controller) SetScreenShare(ctx context.Context, enabled bool) error {
	return loop.Await(ctx, c.loop, func(done func(error)) { c.orch.SetScreenShare(enabled, done) })
}

func (c *Controller) SetNoiseSuppression(ctx context.Context, enabled bool, mode domain.NoiseMode) error {
	return loop.Await(ctx, c.loop, func(done func(error)) { c.orch.SetNoiseSuppression(enabled, mode, done) })
}

func (c *Controller) ResumePlayback(ctx context.Context) error {
	return loop.Await(ctx, c.loop, c.orch.ResumePlayback)
}

func (c *Controller) SetPolicy(ctx context.Context, p app.MediaTypePolicy) error {
	_, err := loop.Query(ctx, c.loop, func() struct{} {
		c.orch.SetPolicy(p)
		return struct{}{}
	})
	return err
}

func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	return loop.Query(ctx, c.loop, c.orch.Snapshot)
}

// Close ends the call, waiting at most grace for it, then stops the loop.
func (c *Controller) Close(grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	_ = c.End(ctx)
	c.loop.Close()
}
