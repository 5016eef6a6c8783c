package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// legacyProducer is the producer announcement shape older servers emit
// under newProducer / producerClosed.
type legacyProducer struct {
	ProducerID       string           `json:"producerId"`
	ProducerSocketID string           `json:"producerSocketId"`
	Kind             domain.Kind      `json:"kind"`
	MediaType        domain.MediaType `json:"mediaType"`
	AppData          struct {
		MediaType domain.MediaType `json:"mediaType"`
		UserID    domain.UserID    `json:"userId"`
		UserName  string           `json:"userName"`
	} `json:"appData"`
}

func (p legacyProducer) mediaType() domain.MediaType {
	if p.MediaType != domain.MediaUnknown {
		return p.MediaType
	}
	return p.AppData.MediaType
}

func badPayload(typ, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", typ, domain.ErrBadPayload, fmt.Sprintf(format, args...))
}

func unmarshal(typ string, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return badPayload(typ, "missing data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return badPayload(typ, "%v", err)
	}
	return nil
}

func validKind(k domain.Kind) bool {
	return k == domain.KindAudio || k == domain.KindVideo
}

func validMediaType(mt domain.MediaType) bool {
	switch mt {
	case domain.MediaUnknown, domain.MediaMicrophone, domain.MediaCamera, domain.MediaScreen, domain.MediaScreenAudio:
		return true
	}
	return false
}

// decodeEvent turns one inbound frame into a validated domain event.
func decodeEvent(typ string, raw json.RawMessage) (domain.Event, error) {
	switch typ {
	case "peerJoined":
		return decodePeerJoined(raw)
	case "peerLeft":
		var ev domain.PeerLeft
		if err := unmarshal(typ, raw, &ev); err != nil {
			return nil, err
		}
		if ev.PeerID == "" && ev.UserID == "" {
			return nil, badPayload(typ, "no peer identity")
		}
		return ev, nil
	case "peerMuteStateChanged":
		var ev domain.PeerMuteStateChanged
		if err := unmarshal(typ, raw, &ev); err != nil {
			return nil, err
		}
		if ev.PeerID == "" && ev.UserID == "" {
			return nil, badPayload(typ, "no peer identity")
		}
		return ev, nil
	case "peerAudioStateChanged":
		var ev domain.PeerAudioStateChanged
		if err := unmarshal(typ, raw, &ev); err != nil {
			return nil, err
		}
		if ev.PeerID == "" && ev.UserID == "" {
			return nil, badPayload(typ, "no peer identity")
		}
		return ev, nil
	case "trackPublished":
		return decodeTrackPublished(raw)
	case "newProducer":
		return decodeNewProducer(raw)
	case "trackClosed":
		var ev domain.TrackClosed
		if err := unmarshal(typ, raw, &ev); err != nil {
			return nil, err
		}
		return validateClosed(typ, ev)
	case "producerClosed":
		var p legacyProducer
		if err := unmarshal(typ, raw, &p); err != nil {
			return nil, err
		}
		return validateClosed(typ, domain.TrackClosed{
			TrackID:     domain.TrackID(p.ProducerID),
			OwnerPeerID: domain.PeerID(p.ProducerSocketID),
			Kind:        p.Kind,
			MediaType:   p.mediaType(),
		})
	case "speakingStateChanged":
		var ev domain.SpeakingStateChanged
		if err := unmarshal(typ, raw, &ev); err != nil {
			return nil, err
		}
		if ev.PeerID == "" && ev.UserID == "" {
			return nil, badPayload(typ, "no peer identity")
		}
		return ev, nil
	}
	return nil, badPayload(typ, "unknown event type")
}

// decodePeerJoined treats a missing isAudioEnabled as enabled; only an explicit
// false marks the peer deafened.
func decodePeerJoined(raw json.RawMessage) (domain.PeerJoined, error) {
	var msg struct {
		domain.PeerJoined
		IsAudioEnabled *bool `json:"isAudioEnabled"`
	}
	if err := unmarshal("peerJoined", raw, &msg); err != nil {
		return domain.PeerJoined{}, err
	}
	ev := msg.PeerJoined
	if ev.PeerID == "" {
		return ev, badPayload("peerJoined", "peerId required")
	}
	ev.IsAudioEnabled = msg.IsAudioEnabled == nil || *msg.IsAudioEnabled
	return ev, nil
}

func decodeTrackPublished(raw json.RawMessage) (domain.TrackPublished, error) {
	var ev domain.TrackPublished
	if err := unmarshal("trackPublished", raw, &ev); err != nil {
		return ev, err
	}
	if ev.TrackID == "" {
		// snapshots from older servers list producers in the legacy shape
		legacy, err := decodeNewProducer(raw)
		if err != nil {
			return ev, err
		}
		return legacy, nil
	}
	return validatePublished("trackPublished", ev)
}

func decodeNewProducer(raw json.RawMessage) (domain.TrackPublished, error) {
	var p legacyProducer
	if err := unmarshal("newProducer", raw, &p); err != nil {
		return domain.TrackPublished{}, err
	}
	return validatePublished("newProducer", domain.TrackPublished{
		TrackID:     domain.TrackID(p.ProducerID),
		OwnerPeerID: domain.PeerID(p.ProducerSocketID),
		Kind:        p.Kind,
		MediaType:   p.mediaType(),
		OwnerUserID: p.AppData.UserID,
		OwnerName:   p.AppData.UserName,
	})
}

func validatePublished(typ string, ev domain.TrackPublished) (domain.TrackPublished, error) {
	switch {
	case ev.TrackID == "":
		return ev, badPayload(typ, "trackId required")
	case ev.OwnerPeerID == "" && ev.OwnerUserID == "":
		return ev, badPayload(typ, "owner required")
	case !validKind(ev.Kind):
		return ev, badPayload(typ, "kind %q", ev.Kind)
	case !validMediaType(ev.MediaType):
		return ev, badPayload(typ, "mediaType %q", ev.MediaType)
	}
	return ev, nil
}

func validateClosed(typ string, ev domain.TrackClosed) (domain.TrackClosed, error) {
	switch {
	case ev.TrackID == "":
		return ev, badPayload(typ, "trackId required")
	case ev.Kind != "" && !validKind(ev.Kind):
		return ev, badPayload(typ, "kind %q", ev.Kind)
	case !validMediaType(ev.MediaType):
		return ev, badPayload(typ, "mediaType %q", ev.MediaType)
	}
	return ev, nil
}
