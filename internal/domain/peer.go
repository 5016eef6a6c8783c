package domain

// StreamRef is an opaque handle to an inbound media stream kept on a Peer for rendering.
type StreamRef interface {
	StreamID() string
}

// Peer represents a remote participant as seen by the local client.
// No transport or lifecycle logic here.
type Peer struct {
	PeerID             PeerID `json:"peerId"`
	UserID             UserID `json:"userId"`
	DisplayName        string `json:"displayName"`
	IsMuted            bool   `json:"isMuted"`
	IsAudioEnabled     bool   `json:"isAudioEnabled"`
	IsGlobalAudioMuted bool   `json:"isGlobalAudioMuted"`
	IsVideoEnabled     bool   `json:"isVideoEnabled"`
	IsScreenSharing    bool   `json:"isScreenSharing"`
	IsSpeaking         bool   `json:"isSpeaking"`
	Avatar             string `json:"avatar,omitempty"`
	AvatarColor        string `json:"avatarColor,omitempty"`
	Banner             string `json:"banner,omitempty"`

	VideoStream       StreamRef `json:"-"`
	VideoTrack        TrackID   `json:"videoTrack,omitempty"`
	ScreenStream      StreamRef `json:"-"`
	ScreenTrack       TrackID   `json:"screenTrack,omitempty"`
	ScreenAudioStream StreamRef `json:"-"`
	ScreenAudioTrack  TrackID   `json:"screenAudioTrack,omitempty"`
}

// NewPeer builds a roster entry from a join announcement.
func NewPeer(ev PeerJoined) Peer {
	return Peer{
		PeerID:             ev.PeerID,
		UserID:             ev.UserID,
		DisplayName:        ev.Name,
		IsMuted:            ev.IsMuted,
		IsAudioEnabled:     ev.IsAudioEnabled,
		IsGlobalAudioMuted: ev.IsGlobalAudioMuted,
		Avatar:             ev.Avatar,
		AvatarColor:        ev.AvatarColor,
	}
}

// MergeProfile fills presentation fields, keeping values already announced by the peer.
func (p *Peer) MergeProfile(pr Profile) {
	if pr.Avatar != "" {
		p.Avatar = pr.Avatar
	}
	if pr.AvatarColor != "" {
		p.AvatarColor = pr.AvatarColor
	}
	if pr.Banner != "" {
		p.Banner = pr.Banner
	}
}

// PeerRef pins a roster entry to one presence interval. A peer that leaves and
// rejoins gets a new Epoch, so results captured for the old interval go stale.
type PeerRef struct {
	UserID UserID
	Epoch  uint64
}
