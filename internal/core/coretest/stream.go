// Package coretest holds hand-written fakes for the stateful media interfaces.
package coretest

import (
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// Stream is a LocalStream whose liveness, level and frames are driven by the test.
type Stream struct {
	ID string
	K  domain.Kind

	mu       sync.Mutex
	live     bool
	enabled  bool
	level    float64
	stops    int
	sinks    map[int]func(core.Frame)
	nextSink int
}

func NewStream(id string, kind domain.Kind) *Stream {
	return &Stream{ID: id, K: kind, live: true, enabled: true, sinks: make(map[int]func(core.Frame))}
}

func NewAudio(id string) *Stream { return NewStream(id, domain.KindAudio) }

func (s *Stream) StreamID() string  { return s.ID }
func (s *Stream) Kind() domain.Kind { return s.K }

func (s *Stream) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = false
	s.stops++
}

// End marks the stream dead without counting as a Stop call.
func (s *Stream) End() {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
}

func (s *Stream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *Stream) AddSink(fn func(core.Frame)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSink
	s.nextSink++
	s.sinks[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.sinks, id)
		s.mu.Unlock()
	}
}

// Sinks is the number of registered consumers.
func (s *Stream) Sinks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sinks)
}

// Emit delivers f to every registered sink.
func (s *Stream) Emit(f core.Frame) {
	s.mu.Lock()
	sinks := make([]func(core.Frame), 0, len(s.sinks))
	for _, fn := range s.sinks {
		sinks = append(sinks, fn)
	}
	s.mu.Unlock()
	for _, fn := range sinks {
		fn(f)
	}
}

func (s *Stream) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *Stream) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Stream) SetLevel(v float64) {
	s.mu.Lock()
	s.level = v
	s.mu.Unlock()
}

func (s *Stream) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}
