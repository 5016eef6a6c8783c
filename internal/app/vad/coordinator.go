package vad

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/domain"
)

type Notifier interface {
	Send(ctx context.Context, ev domain.Outbound) error
}

type Roster interface {
	Find(pid domain.PeerID, uid domain.UserID) (domain.UserID, bool)
	ResolveUserID(pid domain.PeerID) domain.UserID
	Has(uid domain.UserID) bool
	SetSpeaking(uid domain.UserID, speaking bool) bool
}

type MuteSource interface {
	IndividuallyMuted(uid domain.UserID) bool
}

// Coordinator runs the local detector and applies authoritative remote speaking state.
// Local transitions are sent one at a time in order; only the latest wanted state
// is sent once an earlier send completes.
type Coordinator struct {
	det     *Detector
	signal  Notifier
	roster  Roster
	mutes   MuteSource
	tasks   loop.Runner
	running bool

	want     bool
	sent     bool
	inflight bool

	logger zerolog.Logger
}

func NewCoordinator(cfg Config, signal Notifier, r Roster, mutes MuteSource, tasks loop.Runner) *Coordinator {
	return &Coordinator{
		det:    NewDetector(cfg),
		signal: signal,
		roster: r,
		mutes:  mutes,
		tasks:  tasks,
		logger: log.With().Str("module", "app.vad").Logger(),
	}
}

func (c *Coordinator) Interval() time.Duration { return c.det.Config().Interval }

func (c *Coordinator) Start() {
	c.det.Reset()
	c.running = true
	c.logger.Debug().Msg("local detection started")
}

// Stop halts detection. The last broadcast state is forgotten with it.
func (c *Coordinator) Stop() {
	c.running = false
	c.det.Reset()
	c.want, c.sent = false, false
	c.logger.Debug().Msg("local detection stopped")
}

func (c *Coordinator) Running() bool { return c.running }

// Tick samples the local level once. It is driven by the session on every interval.
func (c *Coordinator) Tick(now time.Time, level float64, muted bool) {
	if !c.running {
		return
	}
	speaking, changed := c.det.Sample(level, now, muted)
	if !changed {
		return
	}
	c.logger.Debug().Bool("speaking", speaking).Float64("level", c.det.Smoothed()).Msg("local speaking changed")
	c.want = speaking
	c.flush()
}

func (c *Coordinator) flush() {
	if c.inflight || c.want == c.sent || c.signal == nil {
		return
	}
	v := c.want
	c.inflight = true
	c.tasks.Go("speaking.send", func(ctx context.Context) func() {
		err := c.signal.Send(ctx, domain.Speaking{Speaking: v})
		return func() {
			c.inflight = false
			if err != nil {
				c.logger.Warn().Err(err).Bool("speaking", v).Msg("speaking broadcast failed")
				return
			}
			c.sent = v
			if c.running {
				c.flush()
			}
		}
	})
}

func (c *Coordinator) LocalSpeaking() bool { return c.det.Speaking() }

func (c *Coordinator) LocalLevel() float64 { return c.det.Smoothed() }

// OnSpeakingStateChanged applies a remote peer's own speaking assessment.
// speaking=true is suppressed for peers the local user muted.
func (c *Coordinator) OnSpeakingStateChanged(ev domain.SpeakingStateChanged) {
	uid, ok := c.roster.Find(ev.PeerID, ev.UserID)
	if !ok {
		uid = c.roster.ResolveUserID(ev.PeerID)
		if !c.roster.Has(uid) {
			c.logger.Debug().Str("peer_id", ev.PeerID.String()).Msg("speaking state for unknown peer dropped")
			return
		}
	}
	speaking := ev.Speaking
	if speaking && c.mutes != nil && c.mutes.IndividuallyMuted(uid) {
		speaking = false
	}
	if c.roster.SetSpeaking(uid, speaking) {
		c.logger.Debug().Str("user_id", uid.String()).Bool("speaking", speaking).Msg("remote speaking changed")
	}
}
