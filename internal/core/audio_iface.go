package core

import "context"

type AudioState int32

const (
	AudioRunning AudioState = iota
	AudioSuspended
	AudioClosed
)

func (s AudioState) String() string {
	switch s {
	case AudioRunning:
		return "running"
	case AudioSuspended:
		return "suspended"
	default:
		return "closed"
	}
}

// AudioNode is one stage of a rendering graph.
type AudioNode interface {
	Connect(dst AudioNode) error
	// Disconnect detaches all outputs. Calling it on a disconnected node is not an error.
	Disconnect() error
}

type SourceNode interface {
	AudioNode
}

type GainNode interface {
	AudioNode
	SetGain(v float64)
	Gain() float64
}

// SinkElement is the terminal playback element of a chain.
type SinkElement interface {
	AudioNode
	// Play starts output; it fails with domain.ErrPlaybackBlocked under autoplay restrictions.
	Play(ctx context.Context) error
	Stop()
	Detach()
}

// AudioContext is the process-wide rendering context.
type AudioContext interface {
	State() AudioState
	Resume(ctx context.Context) error
	NewSource(stream MediaStream) (SourceNode, error)
	NewGain() (GainNode, error)
	NewSink() (SinkElement, error)
	Close() error
}

// AudioBackend creates the rendering context lazily.
type AudioBackend interface {
	NewContext() (AudioContext, error)
}
