// Package media owns the local outgoing tracks and the per-peer inbound audio chains.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

const (
	DefaultVolume     = 100
	DefaultRetryDelay = time.Second
)

type Config struct {
	// RetryDelay is how long a sink rejected by autoplay waits before its single retry.
	RetryDelay time.Duration
}

// chain is source → gain → sink for one remote user. Fields are nil until the
// matching stage has been created, so teardown works on partial chains.
type chain struct {
	ref     domain.PeerRef
	trackID domain.TrackID
	stream  core.MediaStream
	source  core.SourceNode
	gain    core.GainNode
	sink    core.SinkElement
	blocked bool
}

type settings struct {
	volume int
	muted  bool
}

// PeerAudio is a read-only view of one user's playback settings.
type PeerAudio struct {
	Volume   int     `json:"volume"`
	Muted    bool    `json:"individuallyMuted"`
	Gain     float64 `json:"gain"`
	HasChain bool    `json:"hasChain"`
	Blocked  bool    `json:"playbackBlocked"`
}

type Pipeline struct {
	backend    core.AudioBackend
	actx       core.AudioContext
	transport  core.Transport
	devices    core.MediaDevices
	suppressor core.NoiseSuppressor
	tasks      loop.Runner
	retryDelay time.Duration

	chains   *app.Registry[domain.UserID, *chain]
	settings *app.Registry[domain.UserID, settings]
	deafened bool

	local localMedia
	gen   uint64

	logger zerolog.Logger
}

func New(cfg Config, backend core.AudioBackend, transport core.Transport, devices core.MediaDevices, suppressor core.NoiseSuppressor, tasks loop.Runner) *Pipeline {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Pipeline{
		backend:    backend,
		transport:  transport,
		devices:    devices,
		suppressor: suppressor,
		tasks:      tasks,
		retryDelay: cfg.RetryDelay,
		chains:     app.NewRegistry[domain.UserID, *chain](),
		settings:   app.NewRegistry[domain.UserID, settings](),
		local:      localMedia{mode: domain.NoiseMedium},
		logger:     log.With().Str("module", "app.media").Logger(),
	}
}

// audioContext returns the shared context, creating it on first use and
// resuming it when it was suspended.
func (p *Pipeline) audioContext() (core.AudioContext, error) {
	if p.actx == nil {
		actx, err := p.backend.NewContext()
		if err != nil {
			return nil, fmt.Errorf("audio context: %w", err)
		}
		p.actx = actx
		p.logger.Debug().Msg("audio context created")
	}
	if p.actx.State() == core.AudioSuspended {
		actx := p.actx
		p.tasks.Go("audio.resume", func(ctx context.Context) func() {
			err := actx.Resume(ctx)
			return func() {
				if err != nil {
					p.logger.Warn().Err(err).Msg("audio context resume failed")
				}
			}
		})
	}
	return p.actx, nil
}

// Attach renders stream for the peer behind ref. If the peer already has a
// chain, only its source is swapped; gain and sink, and with them the stored
// volume and mute, stay in place.
func (p *Pipeline) Attach(ref domain.PeerRef, id domain.TrackID, stream core.MediaStream) error {
	uid := ref.UserID
	actx, err := p.audioContext()
	if err != nil {
		return err
	}

	if c, ok := p.chains.Get(uid); ok {
		return p.swapSource(uid, c, id, stream, actx)
	}

	c := &chain{ref: ref, trackID: id, stream: stream}
	p.chains.Put(uid, c)

	if err := p.build(c, actx); err != nil {
		p.Teardown(uid)
		return fmt.Errorf("build chain for %s: %w", uid, err)
	}
	p.applyGain(uid, c)
	p.logger.Info().Str("user_id", uid.String()).Str("track_id", id.String()).Msg("audio chain built")

	p.play(uid, c, true, nil)
	return nil
}

func (p *Pipeline) build(c *chain, actx core.AudioContext) error {
	var err error
	if c.source, err = actx.NewSource(c.stream); err != nil {
		return err
	}
	if c.gain, err = actx.NewGain(); err != nil {
		return err
	}
	if c.sink, err = actx.NewSink(); err != nil {
		return err
	}
	if err = c.source.Connect(c.gain); err != nil {
		return err
	}
	return c.gain.Connect(c.sink)
}

func (p *Pipeline) swapSource(uid domain.UserID, c *chain, id domain.TrackID, stream core.MediaStream, actx core.AudioContext) error {
	src, err := actx.NewSource(stream)
	if err != nil {
		return fmt.Errorf("swap source for %s: %w", uid, err)
	}
	if err := src.Connect(c.gain); err != nil {
		_ = src.Disconnect()
		return fmt.Errorf("swap source for %s: %w", uid, err)
	}
	oldTrack := c.trackID
	p.release("source", uid, c.source)
	if c.stream != nil && c.stream != stream {
		c.stream.Stop()
	}
	c.source, c.stream, c.trackID = src, stream, id
	p.logger.Info().Str("user_id", uid.String()).Str("old_track", oldTrack.String()).Str("track_id", id.String()).Msg("audio source replaced")
	return nil
}

// play starts the sink off-loop. A first autoplay rejection is retried once
// after retryDelay; a second one marks the chain blocked until ResumePlayback.
func (p *Pipeline) play(uid domain.UserID, c *chain, retry bool, done func(error)) {
	sink, ref := c.sink, c.ref
	p.tasks.Go("audio.play", func(ctx context.Context) func() {
		err := sink.Play(ctx)
		return func() {
			cur, ok := p.chains.Get(uid)
			if !ok || cur.ref != ref || cur.sink != sink {
				p.logger.Debug().Str("user_id", uid.String()).Msg("play result for torn down chain dropped")
				if done != nil {
					done(nil)
				}
				return
			}
			switch {
			case err == nil:
				cur.blocked = false
			case errors.Is(err, domain.ErrPlaybackBlocked) && retry:
				p.logger.Debug().Str("user_id", uid.String()).Dur("delay", p.retryDelay).Msg("autoplay rejected, retrying")
				p.tasks.After(p.retryDelay, func() {
					if again, ok := p.chains.Get(uid); ok && again.sink == sink {
						p.play(uid, again, false, done)
					} else if done != nil {
						done(nil)
					}
				})
				return
			case errors.Is(err, domain.ErrPlaybackBlocked):
				cur.blocked = true
				p.logger.Warn().Str("user_id", uid.String()).Msg("playback blocked, needs user gesture")
			default:
				p.logger.Warn().Err(err).Str("user_id", uid.String()).Msg("sink play failed")
			}
			if done != nil {
				done(err)
			}
		}
	})
}

// PlaybackBlocked reports whether any chain is waiting for a user gesture.
func (p *Pipeline) PlaybackBlocked() bool {
	blocked := false
	p.chains.Each(func(_ domain.UserID, c *chain) {
		blocked = blocked || c.blocked
	})
	return blocked
}

// ResumePlayback retries every blocked sink once, without the autoplay retry.
// done receives domain.ErrPlaybackBlocked if any sink is still blocked.
func (p *Pipeline) ResumePlayback(done func(error)) {
	if p.actx != nil && p.actx.State() == core.AudioSuspended {
		_, _ = p.audioContext()
	}
	var pending []domain.UserID
	p.chains.Each(func(uid domain.UserID, c *chain) {
		if c.blocked {
			pending = append(pending, uid)
		}
	})
	if len(pending) == 0 {
		done(nil)
		return
	}
	left := len(pending)
	var still bool
	for _, uid := range pending {
		c, _ := p.chains.Get(uid)
		p.play(uid, c, false, func(err error) {
			still = still || errors.Is(err, domain.ErrPlaybackBlocked)
			left--
			if left > 0 {
				return
			}
			if still {
				done(domain.ErrPlaybackBlocked)
				return
			}
			done(nil)
		})
	}
}

func (p *Pipeline) setting(uid domain.UserID) settings {
	if s, ok := p.settings.Get(uid); ok {
		return s
	}
	return settings{volume: DefaultVolume}
}

func (p *Pipeline) effectiveGain(uid domain.UserID) float64 {
	s := p.setting(uid)
	if p.deafened || s.muted {
		return 0
	}
	return float64(s.volume) / 100
}

func (p *Pipeline) applyGain(uid domain.UserID, c *chain) {
	if c.gain != nil {
		c.gain.SetGain(p.effectiveGain(uid))
	}
}

// SetVolume stores v, clamped to 0..100, and applies it to the chain if there is one.
func (p *Pipeline) SetVolume(uid domain.UserID, v int) int {
	v = max(0, min(100, v))
	s := p.setting(uid)
	s.volume = v
	p.settings.Put(uid, s)
	if c, ok := p.chains.Get(uid); ok {
		p.applyGain(uid, c)
	}
	return v
}

func (p *Pipeline) SetIndividualMute(uid domain.UserID, muted bool) {
	s := p.setting(uid)
	s.muted = muted
	p.settings.Put(uid, s)
	if c, ok := p.chains.Get(uid); ok {
		p.applyGain(uid, c)
	}
}

// SetDeafen forces every gain to 0 without touching stored volumes.
func (p *Pipeline) SetDeafen(deafened bool) {
	p.deafened = deafened
	p.chains.Each(func(uid domain.UserID, c *chain) {
		p.applyGain(uid, c)
	})
}

func (p *Pipeline) Deafened() bool { return p.deafened }

func (p *Pipeline) Volume(uid domain.UserID) int { return p.setting(uid).volume }

func (p *Pipeline) IndividuallyMuted(uid domain.UserID) bool { return p.setting(uid).muted }

// Gain is the value currently on the user's gain node, or what it would be.
func (p *Pipeline) Gain(uid domain.UserID) float64 {
	if c, ok := p.chains.Get(uid); ok && c.gain != nil {
		return c.gain.Gain()
	}
	return p.effectiveGain(uid)
}

func (p *Pipeline) PeerAudio(uid domain.UserID) PeerAudio {
	s := p.setting(uid)
	c, ok := p.chains.Get(uid)
	return PeerAudio{
		Volume:   s.volume,
		Muted:    s.muted,
		Gain:     p.Gain(uid),
		HasChain: ok,
		Blocked:  ok && c.blocked,
	}
}

func (p *Pipeline) HasChain(uid domain.UserID) bool { return p.chains.Has(uid) }

// ChainTrack is the track currently feeding the user's chain.
func (p *Pipeline) ChainTrack(uid domain.UserID) (domain.TrackID, bool) {
	c, ok := p.chains.Get(uid)
	if !ok {
		return "", false
	}
	return c.trackID, true
}

func (p *Pipeline) ChainCount() int { return p.chains.Len() }

// DetachTrack tears the chain down only if id is the track currently feeding it.
func (p *Pipeline) DetachTrack(uid domain.UserID, id domain.TrackID) bool {
	c, ok := p.chains.Get(uid)
	if !ok || c.trackID != id {
		return false
	}
	return p.Teardown(uid)
}

// Teardown disconnects and stops whatever stages of the chain exist.
// Errors are logged; a missing chain is a no-op.
func (p *Pipeline) Teardown(uid domain.UserID) bool {
	c, ok := p.chains.Remove(uid)
	if !ok {
		return false
	}
	p.release("source", uid, c.source)
	p.release("gain", uid, c.gain)
	if c.sink != nil {
		loop.Guard(p.logger, "sink.stop", func() {
			c.sink.Stop()
			c.sink.Detach()
		})
	}
	if c.stream != nil {
		c.stream.Stop()
	}
	p.logger.Info().Str("user_id", uid.String()).Msg("audio chain torn down")
	return true
}

func (p *Pipeline) release(stage string, uid domain.UserID, n core.AudioNode) {
	if n == nil {
		return
	}
	loop.Guard(p.logger, stage+".disconnect", func() {
		if err := n.Disconnect(); err != nil {
			p.logger.Debug().Err(err).Str("user_id", uid.String()).Str("stage", stage).Msg("disconnect failed")
		}
	})
}

func (p *Pipeline) TeardownAll() int {
	keys := p.chains.Keys()
	for _, uid := range keys {
		p.Teardown(uid)
	}
	return len(keys)
}

// ForgetSettings drops every stored volume and mute. Used when the call ends.
func (p *Pipeline) ForgetSettings() {
	p.settings.Drain()
	p.deafened = false
}

// Close releases all media and the audio context.
func (p *Pipeline) Close() {
	p.TeardownAll()
	p.ReleaseLocal()
	p.ForgetSettings()
	if p.actx != nil {
		if err := p.actx.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("audio context close failed")
		}
		p.actx = nil
	}
}
