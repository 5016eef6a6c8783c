// Package audio is a software audio graph over PCM frames, with file-backed
// capture devices and a noise gate.
package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

type Config struct {
	SampleRate int
	FrameMs    int
	MicPath    string
	OutputPath string
	// RequireGesture blocks playback until Gesture is called.
	RequireGesture bool
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 8000
	}
	if c.FrameMs <= 0 {
		c.FrameMs = 20
	}
	return c
}

func (c Config) frameLen() int { return c.SampleRate * c.FrameMs / 1000 }

func (c Config) period() time.Duration { return time.Duration(c.FrameMs) * time.Millisecond }

var (
	_ core.AudioBackend = (*Backend)(nil)
	_ core.AudioContext = (*Context)(nil)
)

// Backend creates contexts that share one output and one gesture flag.
type Backend struct {
	cfg     Config
	out     io.Writer
	closer  io.Closer
	gesture atomic.Bool
	logger  zerolog.Logger
}

// NewBackend opens the configured output. An empty path discards audio.
func NewBackend(cfg Config) (*Backend, error) {
	cfg = cfg.withDefaults()
	b := &Backend{cfg: cfg, out: io.Discard, logger: log.With().Str("module", "adapters.audio").Logger()}
	if cfg.OutputPath != "" {
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audio output: %w", err)
		}
		b.out, b.closer = f, f
	}
	return b, nil
}

// NewBackendWriter renders to w.
func NewBackendWriter(cfg Config, w io.Writer) *Backend {
	return &Backend{cfg: cfg.withDefaults(), out: w, logger: log.With().Str("module", "adapters.audio").Logger()}
}

// Gesture records a user interaction. Playback and resume are allowed from then on.
func (b *Backend) Gesture() {
	if !b.gesture.Swap(true) {
		b.logger.Info().Msg("user gesture, playback unlocked")
	}
}

func (b *Backend) allowed() bool {
	return !b.cfg.RequireGesture || b.gesture.Load()
}

func (b *Backend) NewContext() (core.AudioContext, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		backend: b,
		mixer:   NewMixer(b.cfg.frameLen()),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	initial := core.AudioRunning
	if !b.allowed() {
		initial = core.AudioSuspended
	}
	c.state.Store(int32(initial))
	go func() {
		defer close(c.done)
		c.mixer.Run(ctx, b.out, b.cfg.period(), b.logger)
	}()
	b.logger.Debug().Stringer("state", initial).Msg("audio context created")
	return c, nil
}

func (b *Backend) Close() error {
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

// Context is one rendering graph feeding the backend output.
type Context struct {
	backend *Backend
	mixer   *Mixer
	state   atomic.Int32
	nextID  atomic.Int64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Context) State() core.AudioState { return core.AudioState(c.state.Load()) }

// Resume leaves the suspended state once the user has interacted.
func (c *Context) Resume(context.Context) error {
	switch {
	case c.State() == core.AudioClosed:
		return ErrContextClosed
	case !c.backend.allowed():
		return domain.ErrPlaybackBlocked
	}
	c.state.Store(int32(core.AudioRunning))
	return nil
}

func (c *Context) NewSource(stream core.MediaStream) (core.SourceNode, error) {
	if c.State() == core.AudioClosed {
		return nil, ErrContextClosed
	}
	if stream == nil {
		return nil, fmt.Errorf("source: no stream")
	}
	return &sourceNode{stream: stream}, nil
}

func (c *Context) NewGain() (core.GainNode, error) {
	if c.State() == core.AudioClosed {
		return nil, ErrContextClosed
	}
	return newGainNode(), nil
}

func (c *Context) NewSink() (core.SinkElement, error) {
	if c.State() == core.AudioClosed {
		return nil, ErrContextClosed
	}
	return &sinkNode{ctx: c, id: int(c.nextID.Add(1))}, nil
}

func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(core.AudioClosed))
		c.cancel()
		<-c.done
	})
	return nil
}
