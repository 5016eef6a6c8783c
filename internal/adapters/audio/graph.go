package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var (
	ErrForeignNode   = errors.New("node belongs to another audio graph")
	ErrTerminalNode  = errors.New("sink has no outputs")
	ErrContextClosed = errors.New("audio context closed")
)

// receiver is implemented by every node that accepts input.
type receiver interface {
	receive(core.Frame)
}

// node holds the single downstream connection every stage has.
type node struct {
	mu  sync.Mutex
	dst receiver
}

func (n *node) Connect(dst core.AudioNode) error {
	r, ok := dst.(receiver)
	if !ok {
		return fmt.Errorf("connect %T: %w", dst, ErrForeignNode)
	}
	n.mu.Lock()
	n.dst = r
	n.mu.Unlock()
	return nil
}

func (n *node) Disconnect() error {
	n.mu.Lock()
	n.dst = nil
	n.mu.Unlock()
	return nil
}

func (n *node) forward(f core.Frame) {
	n.mu.Lock()
	dst := n.dst
	n.mu.Unlock()
	if dst != nil {
		dst.receive(f)
	}
}

// sourceNode pulls frames from a stream once it is connected.
type sourceNode struct {
	node
	stream core.MediaStream

	sub    sync.Mutex
	remove func()
}

func (s *sourceNode) Connect(dst core.AudioNode) error {
	if err := s.node.Connect(dst); err != nil {
		return err
	}
	s.sub.Lock()
	defer s.sub.Unlock()
	if s.remove == nil {
		s.remove = s.stream.AddSink(s.forward)
	}
	return nil
}

func (s *sourceNode) Disconnect() error {
	s.sub.Lock()
	remove := s.remove
	s.remove = nil
	s.sub.Unlock()
	if remove != nil {
		remove()
	}
	return s.node.Disconnect()
}

type gainNode struct {
	node
	bits atomic.Uint64
}

func newGainNode() *gainNode {
	g := &gainNode{}
	g.SetGain(1)
	return g
}

func (g *gainNode) SetGain(v float64) { g.bits.Store(math.Float64bits(v)) }
func (g *gainNode) Gain() float64     { return math.Float64frombits(g.bits.Load()) }

func (g *gainNode) receive(f core.Frame) {
	v := g.Gain()
	if v == 1 {
		g.forward(f)
		return
	}
	out := make(core.Frame, len(f))
	for i, s := range f {
		out[i] = clamp16(float64(s) * v)
	}
	g.forward(out)
}

// sinkNode hands frames to the mixer while playing.
type sinkNode struct {
	ctx      *Context
	id       int
	playing  atomic.Bool
	detached atomic.Bool
}

func (s *sinkNode) Connect(core.AudioNode) error { return ErrTerminalNode }
func (s *sinkNode) Disconnect() error            { return nil }

func (s *sinkNode) receive(f core.Frame) {
	if s.playing.Load() && !s.detached.Load() {
		s.ctx.mixer.Push(s.id, f)
	}
}

func (s *sinkNode) Play(context.Context) error {
	if s.detached.Load() {
		return fmt.Errorf("play: %w", ErrForeignNode)
	}
	if s.ctx.State() == core.AudioClosed {
		return ErrContextClosed
	}
	if !s.ctx.backend.allowed() {
		return domain.ErrPlaybackBlocked
	}
	s.playing.Store(true)
	return nil
}

func (s *sinkNode) Stop() {
	s.playing.Store(false)
	s.ctx.mixer.Remove(s.id)
}

func (s *sinkNode) Detach() {
	s.Stop()
	s.detached.Store(true)
}

func clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
