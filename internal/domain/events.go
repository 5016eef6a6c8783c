package domain

// Event is one validated inbound signaling event. The set of variants is closed.
type Event interface {
	EventType() string
	isEvent()
}

type PeerJoined struct {
	PeerID             PeerID `json:"peerId"`
	UserID             UserID `json:"userId"`
	Name               string `json:"name"`
	IsMuted            bool   `json:"isMuted"`
	IsAudioEnabled     bool   `json:"isAudioEnabled"`
	IsGlobalAudioMuted bool   `json:"isGlobalAudioMuted"`
	Avatar             string `json:"avatar,omitempty"`
	AvatarColor        string `json:"avatarColor,omitempty"`
}

type PeerLeft struct {
	PeerID PeerID `json:"peerId"`
	UserID UserID `json:"userId"`
}

type PeerMuteStateChanged struct {
	PeerID  PeerID `json:"peerId"`
	UserID  UserID `json:"userId,omitempty"`
	IsMuted bool   `json:"isMuted"`
}

type PeerAudioStateChanged struct {
	PeerID             PeerID `json:"peerId"`
	UserID             UserID `json:"userId,omitempty"`
	IsAudioEnabled     bool   `json:"isAudioEnabled"`
	IsGlobalAudioMuted bool   `json:"isGlobalAudioMuted"`
}

type TrackPublished struct {
	TrackID     TrackID   `json:"trackId"`
	OwnerPeerID PeerID    `json:"ownerPeerId"`
	Kind        Kind      `json:"kind"`
	MediaType   MediaType `json:"mediaType,omitempty"`
	OwnerUserID UserID    `json:"ownerUserId,omitempty"`
	OwnerName   string    `json:"ownerName,omitempty"`
}

type TrackClosed struct {
	TrackID     TrackID   `json:"trackId"`
	OwnerPeerID PeerID    `json:"ownerPeerId"`
	Kind        Kind      `json:"kind"`
	MediaType   MediaType `json:"mediaType,omitempty"`
}

type SpeakingStateChanged struct {
	PeerID   PeerID `json:"peerId"`
	UserID   UserID `json:"userId,omitempty"`
	Speaking bool   `json:"speaking"`
}

func (PeerJoined) EventType() string            { return "peerJoined" }
func (PeerLeft) EventType() string              { return "peerLeft" }
func (PeerMuteStateChanged) EventType() string  { return "peerMuteStateChanged" }
func (PeerAudioStateChanged) EventType() string { return "peerAudioStateChanged" }
func (TrackPublished) EventType() string        { return "trackPublished" }
func (TrackClosed) EventType() string           { return "trackClosed" }
func (SpeakingStateChanged) EventType() string  { return "speakingStateChanged" }

func (PeerJoined) isEvent()            {}
func (PeerLeft) isEvent()              {}
func (PeerMuteStateChanged) isEvent()  {}
func (PeerAudioStateChanged) isEvent() {}
func (TrackPublished) isEvent()        {}
func (TrackClosed) isEvent()           {}
func (SpeakingStateChanged) isEvent()  {}

// Outbound is a state notification the local client emits.
type Outbound interface {
	OutboundType() string
	isOutbound()
}

type MuteState struct {
	IsMuted bool `json:"isMuted"`
}

type AudioState struct {
	IsEnabled          bool   `json:"isEnabled"`
	IsGlobalAudioMuted bool   `json:"isGlobalAudioMuted"`
	UserID             UserID `json:"userId"`
}

type GlobalAudioState struct {
	UserID             UserID `json:"userId"`
	IsGlobalAudioMuted bool   `json:"isGlobalAudioMuted"`
}

type Speaking struct {
	Speaking bool `json:"speaking"`
}

func (MuteState) OutboundType() string        { return "muteState" }
func (AudioState) OutboundType() string       { return "audioState" }
func (GlobalAudioState) OutboundType() string { return "globalAudioState" }
func (Speaking) OutboundType() string         { return "speaking" }

func (MuteState) isOutbound()        {}
func (AudioState) isOutbound()       {}
func (GlobalAudioState) isOutbound() {}
func (Speaking) isOutbound()         {}
