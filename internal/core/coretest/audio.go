package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// Node records its connections. Disconnect is counted, never an error.
type Node struct {
	Name        string
	ConnectErr  error
	Connected   core.AudioNode
	Disconnects int
	Source      core.MediaStream
}

func (n *Node) Connect(dst core.AudioNode) error {
	if n.ConnectErr != nil {
		return n.ConnectErr
	}
	n.Connected = dst
	return nil
}

func (n *Node) Disconnect() error {
	n.Connected = nil
	n.Disconnects++
	return nil
}

type Gain struct {
	Node
	value float64
}

func (g *Gain) SetGain(v float64) { g.value = v }
func (g *Gain) Gain() float64     { return g.value }

type Sink struct {
	Node
	ctx      *AudioContext
	Plays    int
	Playing  bool
	Stopped  bool
	Detached bool
}

func (s *Sink) Play(ctx context.Context) error {
	s.Plays++
	if err := s.ctx.nextPlayErr(); err != nil {
		return err
	}
	s.Playing = true
	return nil
}

func (s *Sink) Stop() {
	s.Playing = false
	s.Stopped = true
}

func (s *Sink) Detach() { s.Detached = true }

// AudioContext hands out fake nodes and remembers them in creation order.
// BlockPlays makes the next n Play calls fail with domain.ErrPlaybackBlocked.
type AudioContext struct {
	mu         sync.Mutex
	state      core.AudioState
	Resumes    int
	ResumeErr  error
	SourceErr  error
	GainErr    error
	SinkErr    error
	BlockPlays int

	Sources []*Node
	Gains   []*Gain
	Sinks   []*Sink
}

func NewAudioContext() *AudioContext { return &AudioContext{state: core.AudioRunning} }

func (c *AudioContext) State() core.AudioState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *AudioContext) Suspend() {
	c.mu.Lock()
	c.state = core.AudioSuspended
	c.mu.Unlock()
}

func (c *AudioContext) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Resumes++
	if c.ResumeErr != nil {
		return c.ResumeErr
	}
	c.state = core.AudioRunning
	return nil
}

func (c *AudioContext) NewSource(stream core.MediaStream) (core.SourceNode, error) {
	if c.SourceErr != nil {
		return nil, c.SourceErr
	}
	n := &Node{Name: "source", Source: stream}
	c.Sources = append(c.Sources, n)
	return n, nil
}

func (c *AudioContext) NewGain() (core.GainNode, error) {
	if c.GainErr != nil {
		return nil, c.GainErr
	}
	g := &Gain{Node: Node{Name: "gain"}, value: 1}
	c.Gains = append(c.Gains, g)
	return g, nil
}

func (c *AudioContext) NewSink() (core.SinkElement, error) {
	if c.SinkErr != nil {
		return nil, c.SinkErr
	}
	s := &Sink{Node: Node{Name: "sink"}, ctx: c}
	c.Sinks = append(c.Sinks, s)
	return s, nil
}

func (c *AudioContext) Close() error {
	c.mu.Lock()
	c.state = core.AudioClosed
	c.mu.Unlock()
	return nil
}

func (c *AudioContext) nextPlayErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BlockPlays > 0 {
		c.BlockPlays--
		return domain.ErrPlaybackBlocked
	}
	return nil
}

// Backend returns Ctx on every NewContext call and counts the calls.
type Backend struct {
	Ctx     *AudioContext
	Err     error
	Created int
}

func (b *Backend) NewContext() (core.AudioContext, error) {
	b.Created++
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Ctx, nil
}
