// Package orch sequences a call: connect, join a room, stay in it, leave, end.
package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/app/media"
	"github.com/dkeye/VoiceCall/internal/app/producer"
	"github.com/dkeye/VoiceCall/internal/app/roster"
	"github.com/dkeye/VoiceCall/internal/app/vad"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

const DefaultRequestTimeout = 10 * time.Second

type State int32

const (
	Idle State = iota
	Connecting
	Connected
	InRoom
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case InRoom:
		return "inRoom"
	default:
		return "ended"
	}
}

// Deps are the collaborators of a call. Bind and Every hook the session into
// the loop that drives it; both may be nil in tests.
type Deps struct {
	Signal     core.SignalingClient
	Transport  core.Transport
	Devices    core.MediaDevices
	Suppressor core.NoiseSuppressor
	Audio      core.AudioBackend
	Profiles   core.ProfileProvider
	Tasks      loop.Runner

	Bind  func(events <-chan domain.Event, handle func(domain.Event))
	Every func(d time.Duration, fn func(now time.Time)) (stop func())
}

type Options struct {
	User           domain.LocalUser
	Policy         app.MediaTypePolicy
	VAD            vad.Config
	Media          media.Config
	RequestTimeout time.Duration
	Noise          bool
	NoiseMode      domain.NoiseMode
}

type localState struct {
	muted    bool
	deafened bool
}

// Orchestrator is the call session. All methods run on the loop.
type Orchestrator struct {
	Roster    *roster.Roster
	Media     *media.Pipeline
	Producers *producer.Engine
	VAD       *vad.Coordinator

	signal    core.SignalingClient
	transport core.Transport
	tasks     loop.Runner
	bind      func(<-chan domain.Event, func(domain.Event))
	every     func(time.Duration, func(time.Time)) func()
	timeout   time.Duration

	user  domain.LocalUser
	state State
	room  domain.RoomID
	local localState

	connecting bool
	bound      bool
	joining    bool
	pending    []domain.Event
	gen        uint64
	stopTick   func()

	logger zerolog.Logger
}

func New(d Deps, opt Options) *Orchestrator {
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = DefaultRequestTimeout
	}
	o := &Orchestrator{
		signal:    d.Signal,
		transport: d.Transport,
		tasks:     d.Tasks,
		bind:      d.Bind,
		every:     d.Every,
		timeout:   opt.RequestTimeout,
		user:      opt.User,
		logger:    log.With().Str("module", "app.orch").Str("user_id", opt.User.ID.String()).Logger(),
	}
	o.Roster = roster.New(d.Profiles, d.Tasks)
	o.Media = media.New(opt.Media, d.Audio, d.Transport, d.Devices, d.Suppressor, d.Tasks)
	o.Producers = producer.New(o.Roster, o.Media, d.Transport, d.Tasks, opt.Policy)
	o.VAD = vad.NewCoordinator(opt.VAD, d.Signal, o.Roster, o.Media, d.Tasks)
	if opt.Noise {
		o.Media.SetNoiseSuppression(true, opt.NoiseMode, func(error) {})
	}
	return o
}

func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) Room() domain.RoomID { return o.room }

// InitializeCall opens the signaling connection and binds the event handlers
// once. A call made while a connect is in flight, or after it succeeded, is a no-op.
func (o *Orchestrator) InitializeCall(done func(error)) {
	switch {
	case o.state == Ended:
		done(fmt.Errorf("initialize: %w: call ended", domain.ErrInvalidState))
		return
	case o.connecting, o.state == Connected, o.state == InRoom:
		o.logger.Debug().Stringer("state", o.state).Msg("initialize ignored")
		done(nil)
		return
	}

	o.connecting = true
	o.state = Connecting
	gen := o.gen
	o.logger.Info().Msg("connecting")

	o.tasks.Go("signal.connect", func(ctx context.Context) func() {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		err := o.signal.Connect(cctx)
		return func() {
			o.connecting = false
			if gen != o.gen || o.state != Connecting {
				done(fmt.Errorf("initialize: %w: call ended while connecting", domain.ErrInvalidState))
				return
			}
			if err != nil {
				o.state = Idle
				o.logger.Warn().Err(err).Msg("connect failed")
				done(fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err))
				return
			}
			o.bindHandlers()
			o.state = Connected
			o.logger.Info().Msg("connected")
			done(nil)
		}
	})
}

func (o *Orchestrator) bindHandlers() {
	if o.bound {
		return
	}
	o.bound = true
	if o.bind != nil {
		o.bind(o.signal.Events(), o.HandleEvent)
	}
	o.logger.Debug().Msg("event handlers bound")
}

// EndCall is valid from any state and tears everything down, the signaling connection included.
func (o *Orchestrator) EndCall(done func(error)) {
	if o.state == Ended {
		done(nil)
		return
	}
	prev := o.state
	o.gen++
	o.teardownRoom()
	o.Media.Close()
	o.connecting = false
	o.state = Ended

	sig, tr := o.signal, o.transport
	o.tasks.Go("call.close", func(context.Context) func() {
		if sig != nil {
			sig.Close()
		}
		if tr != nil {
			tr.Close()
		}
		return nil
	})
	o.logger.Info().Stringer("from", prev).Msg("call ended")
	done(nil)
}

func (o *Orchestrator) send(ev domain.Outbound) {
	if o.state != Connected && o.state != InRoom {
		return
	}
	o.tasks.Go("signal.send", func(ctx context.Context) func() {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		err := o.signal.Send(cctx, ev)
		return func() {
			if err != nil {
				o.logger.Warn().Err(err).Str("type", ev.OutboundType()).Msg("state notification failed")
			}
		}
	})
}
