package media

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

type localTrack struct {
	id     domain.TrackID
	stream core.LocalStream
}

type localMedia struct {
	mic       *localTrack
	original  core.LocalStream
	processed core.LocalStream
	lastLive  core.LocalStream

	camera *localTrack
	screen *localTrack

	muted bool
	noise bool
	mode  domain.NoiseMode
	busy  map[string]bool
}

// LocalState is what the pipeline knows about the outgoing media.
type LocalState struct {
	MicPublished    bool             `json:"micPublished"`
	MicTrack        domain.TrackID   `json:"micTrack,omitempty"`
	VideoEnabled    bool             `json:"videoEnabled"`
	ScreenSharing   bool             `json:"screenSharing"`
	NoiseSuppressed bool             `json:"noiseSuppressed"`
	NoiseMode       domain.NoiseMode `json:"noiseSuppressionMode"`
	NoiseActive     bool             `json:"noiseActive"`
}

func (p *Pipeline) LocalState() LocalState {
	l := p.local
	st := LocalState{
		VideoEnabled:    l.camera != nil,
		ScreenSharing:   l.screen != nil,
		NoiseSuppressed: l.noise,
		NoiseMode:       l.mode,
	}
	if l.mic != nil {
		st.MicPublished = true
		st.MicTrack = l.mic.id
		st.NoiseActive = l.processed != nil && l.mic.stream == l.processed
	}
	return st
}

// PublishMicrophone acquires the microphone and publishes it once. Later calls
// are no-ops while the track stays published. A permission refusal is passed
// to done and leaves every existing chain alone.
func (p *Pipeline) PublishMicrophone(done func(error)) {
	if p.local.mic != nil || p.local.busy["mic"] {
		done(nil)
		return
	}
	p.markBusy("mic", true)
	gen := p.gen
	noise, mode := p.local.noise, p.local.mode

	p.tasks.Go("mic.publish", func(ctx context.Context) func() {
		orig, err := p.devices.Microphone(ctx)
		if err != nil {
			return func() {
				p.markBusy("mic", false)
				done(fmt.Errorf("microphone: %w", err))
			}
		}
		var processed core.LocalStream
		if noise && mode != domain.NoiseOff && p.suppressor != nil {
			if processed, err = p.suppressor.Process(ctx, orig, mode); err != nil {
				p.logger.Warn().Err(err).Msg("noise suppression unavailable, publishing raw microphone")
				processed = nil
			}
		}
		src, err := pickSource(processed, orig, nil)
		if err != nil {
			orig.Stop()
			return func() {
				p.markBusy("mic", false)
				done(err)
			}
		}
		id, err := p.transport.PublishTrack(ctx, domain.KindAudio, domain.MediaMicrophone, src)
		return func() {
			p.markBusy("mic", false)
			if gen != p.gen {
				p.logger.Debug().Msg("microphone acquired after release, dropping")
				p.discard(id, err, orig, processed)
				done(nil)
				return
			}
			if err != nil {
				stopAll(orig, processed)
				done(fmt.Errorf("publish microphone: %w", err))
				return
			}
			p.local.mic = &localTrack{id: id, stream: src}
			p.local.original, p.local.processed, p.local.lastLive = orig, processed, src
			p.applyMute()
			p.logger.Info().Str("track_id", id.String()).Bool("noise", src == processed).Msg("microphone published")
			done(nil)
		}
	})
}

// SetMuted mutes the published microphone by disabling its track, never by unpublishing.
func (p *Pipeline) SetMuted(muted bool) {
	p.local.muted = muted
	p.applyMute()
}

func (p *Pipeline) applyMute() {
	for _, s := range []core.LocalStream{p.local.original, p.local.processed} {
		if s != nil {
			s.SetEnabled(!p.local.muted)
		}
	}
}

// LocalLevel is the raw microphone level, 0 when nothing is captured.
func (p *Pipeline) LocalLevel() float64 {
	if p.local.original == nil || !p.local.original.Live() {
		return 0
	}
	return p.local.original.Level()
}

// SetCamera publishes or unpublishes the camera track.
func (p *Pipeline) SetCamera(enabled bool, done func(error)) {
	p.toggleVideo("camera", &p.local.camera, domain.MediaCamera, p.devices.Camera, enabled, done)
}

// SetScreenShare publishes or unpublishes the screen track.
func (p *Pipeline) SetScreenShare(enabled bool, done func(error)) {
	p.toggleVideo("screen", &p.local.screen, domain.MediaScreen, p.devices.Screen, enabled, done)
}

func (p *Pipeline) toggleVideo(name string, slot **localTrack, mt domain.MediaType,
	acquire func(context.Context) (core.LocalStream, error), enabled bool, done func(error)) {
	if p.local.busy[name] {
		done(fmt.Errorf("%s: %w: change in progress", name, domain.ErrInvalidState))
		return
	}
	if !enabled {
		if t := *slot; t != nil {
			*slot = nil
			p.unpublish(name, t)
		}
		done(nil)
		return
	}
	if *slot != nil {
		done(nil)
		return
	}

	p.markBusy(name, true)
	gen := p.gen
	p.tasks.Go(name+".publish", func(ctx context.Context) func() {
		stream, err := acquire(ctx)
		if err != nil {
			return func() {
				p.markBusy(name, false)
				done(fmt.Errorf("%s: %w", name, err))
			}
		}
		id, err := p.transport.PublishTrack(ctx, domain.KindVideo, mt, stream)
		return func() {
			p.markBusy(name, false)
			if gen != p.gen {
				p.discard(id, err, stream, nil)
				done(nil)
				return
			}
			if err != nil {
				stream.Stop()
				done(fmt.Errorf("publish %s: %w", name, err))
				return
			}
			*slot = &localTrack{id: id, stream: stream}
			p.logger.Info().Str("track_id", id.String()).Str("media", string(mt)).Msg("video published")
			done(nil)
		}
	})
}

// SetNoiseSuppression swaps the source of the published microphone in place.
// The replacement source is the first live one of: processed, original, last live.
func (p *Pipeline) SetNoiseSuppression(enabled bool, mode domain.NoiseMode, done func(error)) {
	if p.local.busy["noise"] {
		done(fmt.Errorf("noise suppression: %w: change in progress", domain.ErrInvalidState))
		return
	}
	if mode != "" {
		p.local.mode = mode
	}
	p.local.noise = enabled
	mic := p.local.mic
	if mic == nil {
		done(nil)
		return
	}

	p.markBusy("noise", true)
	gen := p.gen
	orig, last, prev := p.local.original, p.local.lastLive, p.local.processed
	mode = p.local.mode
	want := enabled && mode != domain.NoiseOff

	p.tasks.Go("mic.replace", func(ctx context.Context) func() {
		var processed core.LocalStream
		if want && p.suppressor != nil && orig != nil {
			var err error
			if processed, err = p.suppressor.Process(ctx, orig, mode); err != nil {
				p.logger.Warn().Err(err).Str("mode", string(mode)).Msg("noise suppression failed, falling back")
				processed = nil
			}
		}
		src, err := pickSource(processed, orig, last)
		if err == nil && src != mic.stream {
			err = p.transport.ReplaceTrack(ctx, mic.id, src)
		}
		return func() {
			p.markBusy("noise", false)
			if gen != p.gen || p.local.mic != mic {
				stopAll(processed)
				done(nil)
				return
			}
			if err != nil {
				stopAll(processed)
				done(fmt.Errorf("replace microphone source: %w", err))
				return
			}
			mic.stream = src
			p.local.lastLive = src
			p.local.processed = nil
			if src == processed {
				p.local.processed = processed
			} else {
				stopAll(processed)
			}
			if prev != nil && prev != src {
				prev.Stop()
			}
			p.applyMute()
			p.logger.Info().Str("track_id", mic.id.String()).Bool("processed", src == processed).Str("mode", string(mode)).Msg("microphone source replaced")
			done(nil)
		}
	})
}

// pickSource returns the first live candidate.
func pickSource(processed, original, lastLive core.LocalStream) (core.LocalStream, error) {
	for _, s := range []core.LocalStream{processed, original, lastLive} {
		if s != nil && s.Live() {
			return s, nil
		}
	}
	return nil, domain.ErrNoLiveSource
}

// ReleaseLocal unpublishes and stops every local track. Acquisitions still in
// flight are discarded when they complete.
func (p *Pipeline) ReleaseLocal() {
	p.gen++
	for name, slot := range map[string]**localTrack{"mic": &p.local.mic, "camera": &p.local.camera, "screen": &p.local.screen} {
		if t := *slot; t != nil {
			*slot = nil
			p.unpublish(name, t)
		}
	}
	stopAll(p.local.original, p.local.processed, p.local.lastLive)
	p.local.original, p.local.processed, p.local.lastLive = nil, nil, nil
	clear(p.local.busy)
}

func (p *Pipeline) unpublish(name string, t *localTrack) {
	t.stream.Stop()
	id := t.id
	p.tasks.Go(name+".unpublish", func(ctx context.Context) func() {
		err := p.transport.UnpublishTrack(ctx, id)
		return func() {
			if err != nil {
				p.logger.Warn().Err(err).Str("track_id", id.String()).Msg("unpublish failed")
				return
			}
			p.logger.Info().Str("track_id", id.String()).Str("media", name).Msg("track unpublished")
		}
	})
}

// discard undoes an acquisition whose session went away while it was in flight.
func (p *Pipeline) discard(id domain.TrackID, publishErr error, streams ...core.LocalStream) {
	stopAll(streams...)
	if publishErr == nil && id != "" {
		p.unpublish("stale", &localTrack{id: id, stream: streams[0]})
	}
}

func (p *Pipeline) markBusy(name string, busy bool) {
	if p.local.busy == nil {
		p.local.busy = make(map[string]bool)
	}
	if busy {
		p.local.busy[name] = true
		return
	}
	delete(p.local.busy, name)
}

func stopAll(streams ...core.LocalStream) {
	for _, s := range streams {
		if s != nil {
			s.Stop()
		}
	}
}
