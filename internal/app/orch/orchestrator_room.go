package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/domain"
)

type JoinResult struct {
	Room       domain.RoomID `json:"room"`
	Peers      int           `json:"peers"`
	Producers  int           `json:"producers"`
	ListenOnly bool          `json:"listenOnly"`
	MicErr     error         `json:"-"`
	MicError   string        `json:"micError,omitempty"`
}

// JoinRoom enters room. Live events that arrive while the join is in flight
// are held back until the snapshot and its producers have been applied and
// the microphone has been published. A refused microphone joins listen-only.
func (o *Orchestrator) JoinRoom(room domain.RoomID, done func(JoinResult, error)) {
	if o.state != Connected {
		done(JoinResult{}, fmt.Errorf("join %s: %w: state %s", room, domain.ErrInvalidState, o.state))
		return
	}
	if o.joining {
		done(JoinResult{}, fmt.Errorf("join %s: %w: join in progress", room, domain.ErrInvalidState))
		return
	}

	o.joining = true
	o.pending = nil
	gen := o.gen
	req := domain.JoinRequest{
		RoomID:         room,
		Name:           o.user.Name,
		UserID:         o.user.ID,
		IsMuted:        o.local.muted,
		IsAudioEnabled: !o.local.deafened,
		Avatar:         o.user.Avatar,
		AvatarColor:    o.user.AvatarColor,
	}
	o.logger.Info().Str("room", string(room)).Msg("joining room")

	o.tasks.Go("room.join", func(ctx context.Context) func() {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		snap, err := o.signal.JoinRoom(cctx, req)
		return func() { o.onJoined(gen, room, snap, err, done) }
	})
}

func (o *Orchestrator) onJoined(gen uint64, room domain.RoomID, snap *domain.JoinSnapshot, err error, done func(JoinResult, error)) {
	if gen != o.gen || o.state != Connected {
		o.logger.Debug().Str("room", string(room)).Msg("join result for abandoned join dropped")
		done(JoinResult{}, fmt.Errorf("join %s: %w: abandoned", room, domain.ErrInvalidState))
		return
	}
	if err != nil {
		o.joining = false
		o.pending = nil
		o.logger.Warn().Err(err).Str("room", string(room)).Msg("join rejected")
		done(JoinResult{}, fmt.Errorf("join %s: %w: %v", room, domain.ErrSignalingUnavailable, err))
		return
	}
	if snap == nil {
		snap = &domain.JoinSnapshot{}
	}

	o.room = room
	o.Roster.ApplySnapshot(snap.ExistingPeers)
	o.Producers.ApplyExisting(snap.ExistingProducers)
	res := JoinResult{Room: room, Peers: len(snap.ExistingPeers), Producers: len(snap.ExistingProducers)}

	o.Media.SetMuted(o.local.muted)
	o.Media.PublishMicrophone(func(err error) {
		if gen != o.gen || o.state != Connected {
			done(JoinResult{}, fmt.Errorf("join %s: %w: left while publishing", room, domain.ErrInvalidState))
			return
		}
		if err != nil {
			res.ListenOnly, res.MicErr, res.MicError = true, err, err.Error()
			o.logger.Warn().Err(err).Msg("microphone unavailable, listen-only")
		}
		o.enterRoom()
		o.logger.Info().Str("room", string(room)).Int("peers", res.Peers).Int("producers", res.Producers).Msg("in room")
		done(res, nil)
	})
}

func (o *Orchestrator) enterRoom() {
	o.state = InRoom
	o.joining = false
	pending := o.pending
	o.pending = nil
	for _, ev := range pending {
		o.HandleEvent(ev)
	}
	o.VAD.Start()
	if o.every != nil {
		o.stopTick = o.every(o.VAD.Interval(), o.Tick)
	}
}

// LeaveRoom drops every per-room resource but keeps the signaling connection.
func (o *Orchestrator) LeaveRoom(done func(error)) {
	if o.state != InRoom {
		done(fmt.Errorf("leave: %w: state %s", domain.ErrInvalidState, o.state))
		return
	}
	room := o.room
	o.gen++
	o.teardownRoom()
	o.state = Connected
	o.logger.Info().Str("room", string(room)).Msg("left room")

	o.tasks.Go("room.leave", func(ctx context.Context) func() {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		err := o.signal.LeaveRoom(cctx)
		return func() {
			if err != nil {
				o.logger.Warn().Err(err).Str("room", string(room)).Msg("leave notification failed")
			}
			done(nil)
		}
	})
}

func (o *Orchestrator) teardownRoom() {
	if o.stopTick != nil {
		o.stopTick()
		o.stopTick = nil
	}
	o.VAD.Stop()
	chains := o.Media.TeardownAll()
	o.Media.ReleaseLocal()
	o.Producers.Reset()
	peers := o.Roster.Clear()
	o.joining = false
	o.pending = nil
	o.room = ""
	o.logger.Debug().Int("chains", chains).Int("peers", len(peers)).Msg("room state released")
}

// HandleEvent gates an inbound event by session state. While a join is in
// flight events are queued; outside a room they are dropped. A panic in a
// handler is logged and leaves other peers untouched.
func (o *Orchestrator) HandleEvent(ev domain.Event) {
	if o.joining {
		o.pending = append(o.pending, ev)
		return
	}
	if o.state != InRoom {
		o.logger.Debug().Str("type", ev.EventType()).Stringer("state", o.state).Msg("event outside room dropped")
		return
	}
	loop.Guard(o.logger, ev.EventType(), func() { o.dispatch(ev) })
}

func (o *Orchestrator) dispatch(ev domain.Event) {
	switch e := ev.(type) {
	case domain.PeerJoined:
		o.Roster.OnPeerJoined(e)
	case domain.PeerLeft:
		p, ok := o.Roster.OnPeerLeft(e)
		if !ok {
			return
		}
		o.Media.Teardown(p.UserID)
		o.Producers.ForgetOwner(p.UserID)
	case domain.PeerMuteStateChanged:
		if uid, ok := o.Roster.Find(e.PeerID, e.UserID); ok {
			o.Roster.SetMuted(uid, e.IsMuted)
		}
	case domain.PeerAudioStateChanged:
		if uid, ok := o.Roster.Find(e.PeerID, e.UserID); ok {
			o.Roster.SetAudioState(uid, e.IsAudioEnabled, e.IsGlobalAudioMuted)
		}
	case domain.TrackPublished:
		o.Producers.OnTrackPublished(e)
	case domain.TrackClosed:
		o.Producers.OnTrackClosed(e)
	case domain.SpeakingStateChanged:
		o.VAD.OnSpeakingStateChanged(e)
	default:
		o.logger.Warn().Str("type", ev.EventType()).Msg("unhandled event")
	}
}
