package core

//go:generate mockgen -destination=mocks/media_mock.go -package=mocks . Transport,MediaDevices,NoiseSuppressor

import (
	"context"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// Frame is one block of mono 16-bit PCM.
type Frame []int16

// MediaStream is a handle to a live stream of decoded media.
type MediaStream interface {
	StreamID() string
	Kind() domain.Kind
	// Live is false once the underlying source has ended.
	Live() bool
	Stop()
	// AddSink registers a consumer of frames. The returned func removes it.
	AddSink(fn func(Frame)) (remove func())
}

// LocalStream is a locally captured stream that can be muted in place.
type LocalStream interface {
	MediaStream
	SetEnabled(enabled bool)
	Enabled() bool
	// Level is the current mean amplitude on a 0-255 scale.
	Level() float64
}

// Transport publishes local tracks and subscribes to remote ones.
// The join handshake, ICE and SDP stay behind this interface.
type Transport interface {
	PublishTrack(ctx context.Context, kind domain.Kind, mt domain.MediaType, src LocalStream) (domain.TrackID, error)
	// ReplaceTrack swaps the source of an already published track, keeping its id.
	ReplaceTrack(ctx context.Context, id domain.TrackID, src LocalStream) error
	UnpublishTrack(ctx context.Context, id domain.TrackID) error
	SubscribeTrack(ctx context.Context, id domain.TrackID) (MediaStream, error)
	Close()
}

// MediaDevices acquires local capture streams. Refusals wrap domain.ErrPermissionDenied.
type MediaDevices interface {
	Microphone(ctx context.Context) (LocalStream, error)
	Camera(ctx context.Context) (LocalStream, error)
	Screen(ctx context.Context) (LocalStream, error)
}

// NoiseSuppressor is a black-box audio transform.
type NoiseSuppressor interface {
	Process(ctx context.Context, src LocalStream, mode domain.NoiseMode) (LocalStream, error)
}
