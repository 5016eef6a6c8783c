package domain

import "fmt"

type TrackID string

func (id TrackID) String() string { return string(id) }

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

type MediaType string

const (
	MediaUnknown     MediaType = ""
	MediaMicrophone  MediaType = "microphone"
	MediaCamera      MediaType = "camera"
	MediaScreen      MediaType = "screen"
	MediaScreenAudio MediaType = "screenAudio"
)

type Lifecycle int32

const (
	LifecycleOpen Lifecycle = iota
	LifecycleClosed
)

func (l Lifecycle) String() string {
	if l == LifecycleClosed {
		return "closed"
	}
	return "open"
}

// Track is one published media stream (a producer). Closed is terminal.
type Track struct {
	ID        TrackID
	Kind      Kind
	MediaType MediaType
	Owner     PeerID
	OwnerUser UserID
	Target    Target
	Lifecycle Lifecycle
}

// Close moves the track to its terminal state. It reports whether the call changed anything.
func (t *Track) Close() bool {
	if t.Lifecycle == LifecycleClosed {
		return false
	}
	t.Lifecycle = LifecycleClosed
	return true
}

// Target is where a track's media is routed on the receiving side.
type Target int

const (
	TargetNone Target = iota
	TargetMicrophone
	TargetCamera
	TargetScreen
	TargetScreenAudio
)

func (t Target) String() string {
	switch t {
	case TargetMicrophone:
		return "microphone"
	case TargetCamera:
		return "camera"
	case TargetScreen:
		return "screen"
	case TargetScreenAudio:
		return "screenAudio"
	default:
		return "none"
	}
}

// IsAudio reports whether the target is rendered through audio.
func (t Target) IsAudio() bool {
	return t == TargetMicrophone || t == TargetScreenAudio
}

// Classify routes a (kind, mediaType) pair to exactly one target.
// A missing media type yields ErrClassificationAmbiguous; callers decide on a fallback.
func Classify(kind Kind, mt MediaType) (Target, error) {
	if mt == MediaUnknown {
		return TargetNone, ErrClassificationAmbiguous
	}
	switch {
	case kind == KindAudio && mt == MediaMicrophone:
		return TargetMicrophone, nil
	case kind == KindAudio && mt == MediaScreenAudio:
		return TargetScreenAudio, nil
	case kind == KindVideo && mt == MediaCamera:
		return TargetCamera, nil
	case kind == KindVideo && mt == MediaScreen:
		return TargetScreen, nil
	}
	return TargetNone, fmt.Errorf("%w: kind=%s media=%s", ErrUnclassifiable, kind, mt)
}

// NoiseMode is the strength of local noise suppression.
type NoiseMode string

const (
	NoiseOff    NoiseMode = "off"
	NoiseLow    NoiseMode = "low"
	NoiseMedium NoiseMode = "medium"
	NoiseHigh   NoiseMode = "high"
)

func ParseNoiseMode(s string) (NoiseMode, error) {
	switch m := NoiseMode(s); m {
	case NoiseOff, NoiseLow, NoiseMedium, NoiseHigh:
		return m, nil
	}
	return "", fmt.Errorf("unknown noise suppression mode %q", s)
}
