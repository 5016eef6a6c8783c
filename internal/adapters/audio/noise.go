package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var _ core.NoiseSuppressor = NoiseGate{}

// gateLevels are the frame levels (0-255) below which a frame is silenced.
var gateLevels = map[domain.NoiseMode]float64{
	domain.NoiseOff:    0,
	domain.NoiseLow:    2,
	domain.NoiseMedium: 5,
	domain.NoiseHigh:   10,
}

// NoiseGate silences frames whose level stays under the mode's floor.
type NoiseGate struct{}

func (NoiseGate) Process(ctx context.Context, src core.LocalStream, mode domain.NoiseMode) (core.LocalStream, error) {
	floor, ok := gateLevels[mode]
	if !ok {
		return nil, fmt.Errorf("noise gate: unknown mode %q", mode)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !src.Live() {
		return nil, fmt.Errorf("noise gate: %w", domain.ErrNoLiveSource)
	}
	g := &gatedStream{src: src, floor: floor, id: src.StreamID() + "+gate"}
	g.enabled.Store(true)
	g.remove = src.AddSink(g.receive)
	return g, nil
}

// gatedStream is the processed view of a source. Stopping it leaves the source running.
type gatedStream struct {
	id    string
	src   core.LocalStream
	floor float64

	out     core.Fanout
	enabled atomic.Bool
	stopped atomic.Bool
	level   atomic.Uint64

	stopOnce sync.Once
	remove   func()
}

func (g *gatedStream) StreamID() string  { return g.id }
func (g *gatedStream) Kind() domain.Kind { return domain.KindAudio }
func (g *gatedStream) Live() bool        { return !g.stopped.Load() && g.src.Live() }

func (g *gatedStream) AddSink(fn func(core.Frame)) func() { return g.out.Add(fn) }

func (g *gatedStream) SetEnabled(enabled bool) { g.enabled.Store(enabled) }
func (g *gatedStream) Enabled() bool           { return g.enabled.Load() }
func (g *gatedStream) Level() float64          { return math.Float64frombits(g.level.Load()) }

func (g *gatedStream) Stop() {
	g.stopOnce.Do(func() {
		g.stopped.Store(true)
		g.remove()
	})
}

func (g *gatedStream) receive(f core.Frame) {
	if g.stopped.Load() {
		return
	}
	out := f
	if !g.enabled.Load() || Level(f) < g.floor {
		out = make(core.Frame, len(f))
	}
	g.level.Store(math.Float64bits(Level(out)))
	g.out.Emit(out)
}
