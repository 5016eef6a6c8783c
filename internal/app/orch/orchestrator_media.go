package orch

import (
	"fmt"
	"time"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/app/media"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// SetMuted mutes the local microphone in place and notifies the room.
func (o *Orchestrator) SetMuted(muted bool) {
	o.local.muted = muted
	o.Media.SetMuted(muted)
	o.logger.Info().Bool("muted", muted).Msg("local mute")
	o.send(domain.MuteState{IsMuted: muted})
}

func (o *Orchestrator) ToggleMute() bool {
	o.SetMuted(!o.local.muted)
	return o.local.muted
}

// SetDeafened silences every incoming stream without touching per-peer volumes.
func (o *Orchestrator) SetDeafened(deafened bool) {
	o.local.deafened = deafened
	o.Media.SetDeafen(deafened)
	o.logger.Info().Bool("deafened", deafened).Msg("local deafen")
	o.send(domain.AudioState{IsEnabled: !deafened, IsGlobalAudioMuted: deafened, UserID: o.user.ID})
	o.send(domain.GlobalAudioState{UserID: o.user.ID, IsGlobalAudioMuted: deafened})
}

func (o *Orchestrator) ToggleDeafen() bool {
	o.SetDeafened(!o.local.deafened)
	return o.local.deafened
}

func (o *Orchestrator) SetVolume(uid domain.UserID, v int) int {
	return o.Media.SetVolume(uid, v)
}

// SetPeerMuted mutes one remote user locally. Their speaking flag is cleared with it.
func (o *Orchestrator) SetPeerMuted(uid domain.UserID, muted bool) {
	o.Media.SetIndividualMute(uid, muted)
	if muted {
		o.Roster.SetSpeaking(uid, false)
	}
}

func (o *Orchestrator) SetCamera(enabled bool, done func(error)) {
	if o.state != InRoom {
		done(fmt.Errorf("camera: %w: state %s", domain.ErrInvalidState, o.state))
		return
	}
	o.Media.SetCamera(enabled, done)
}

func (o *Orchestrator) SetScreenShare(enabled bool, done func(error)) {
	if o.state != InRoom {
		done(fmt.Errorf("screen share: %w: state %s", domain.ErrInvalidState, o.state))
		return
	}
	o.Media.SetScreenShare(enabled, done)
}

func (o *Orchestrator) SetNoiseSuppression(enabled bool, mode domain.NoiseMode, done func(error)) {
	o.Media.SetNoiseSuppression(enabled, mode, done)
}

func (o *Orchestrator) ResumePlayback(done func(error)) {
	o.Media.ResumePlayback(done)
}

func (o *Orchestrator) SetPolicy(p app.MediaTypePolicy) {
	o.Producers.SetPolicy(p)
	o.logger.Info().Stringer("policy", p).Msg("media type policy changed")
}

// Tick runs one local detection cycle.
func (o *Orchestrator) Tick(now time.Time) {
	if o.state != InRoom {
		return
	}
	o.VAD.Tick(now, o.Media.LocalLevel(), o.local.muted)
}

type PeerView struct {
	domain.Peer
	media.PeerAudio
}

type LocalView struct {
	Muted    bool `json:"muted"`
	Deafened bool `json:"deafened"`
	Speaking bool `json:"speaking"`
	media.LocalState
}

// Snapshot is a read-only view of the call for the UI.
type Snapshot struct {
	State           string        `json:"state"`
	Room            domain.RoomID `json:"room,omitempty"`
	UserID          domain.UserID `json:"userId"`
	Name            string        `json:"name"`
	Local           LocalView     `json:"local"`
	PlaybackBlocked bool          `json:"playbackBlocked"`
	Policy          string        `json:"mediaTypePolicy"`
	Peers           []PeerView    `json:"peers"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	peers := o.Roster.Peers()
	views := make([]PeerView, 0, len(peers))
	for _, p := range peers {
		views = append(views, PeerView{Peer: p, PeerAudio: o.Media.PeerAudio(p.UserID)})
	}
	return Snapshot{
		State:  o.state.String(),
		Room:   o.room,
		UserID: o.user.ID,
		Name:   o.user.Name,
		Local: LocalView{
			Muted:      o.local.muted,
			Deafened:   o.local.deafened,
			Speaking:   o.VAD.LocalSpeaking(),
			LocalState: o.Media.LocalState(),
		},
		PlaybackBlocked: o.Media.PlaybackBlocked(),
		Policy:          o.Producers.Policy().String(),
		Peers:           views,
	}
}
