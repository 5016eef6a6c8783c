package domain

type RoomID string

// JoinRequest is what the local client announces when entering a room.
type JoinRequest struct {
	RoomID         RoomID `json:"roomId"`
	Name           string `json:"name"`
	UserID         UserID `json:"userId"`
	IsMuted        bool   `json:"isMuted"`
	IsAudioEnabled bool   `json:"isAudioEnabled"`
	Avatar         string `json:"avatar,omitempty"`
	AvatarColor    string `json:"avatarColor,omitempty"`
}

// JoinSnapshot is the atomic room state returned by a successful join.
type JoinSnapshot struct {
	ExistingPeers     []PeerJoined     `json:"existingPeers"`
	ExistingProducers []TrackPublished `json:"existingProducers"`
}
