package audio

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceCall/internal/core"
)

// maxQueued frames per sink; older audio is dropped rather than delayed.
const maxQueued = 8

// Mixer sums one frame per playing sink per tick.
type Mixer struct {
	frameLen int

	mu     sync.Mutex
	queues map[int][]core.Frame
}

func NewMixer(frameLen int) *Mixer {
	return &Mixer{frameLen: frameLen, queues: make(map[int][]core.Frame)}
}

func (m *Mixer) Push(id int, f core.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := append(m.queues[id], f)
	if len(q) > maxQueued {
		q = q[len(q)-maxQueued:]
	}
	m.queues[id] = q
}

func (m *Mixer) Remove(id int) {
	m.mu.Lock()
	delete(m.queues, id)
	m.mu.Unlock()
}

// Mix pops the head frame of every queue and returns their clamped sum.
func (m *Mixer) Mix() core.Frame {
	acc := make([]int32, m.frameLen)
	m.mu.Lock()
	for id, q := range m.queues {
		if len(q) == 0 {
			continue
		}
		f := q[0]
		m.queues[id] = q[1:]
		for i := 0; i < len(f) && i < len(acc); i++ {
			acc[i] += int32(f[i])
		}
	}
	m.mu.Unlock()

	out := make(core.Frame, m.frameLen)
	for i, v := range acc {
		out[i] = clamp16(float64(v))
	}
	return out
}

// Run writes one mixed frame of s16le PCM to w every period until ctx ends.
func (m *Mixer) Run(ctx context.Context, w io.Writer, period time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	buf := make([]byte, 2*m.frameLen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, s := range m.Mix() {
				binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
			}
			if _, err := w.Write(buf); err != nil {
				logger.Warn().Err(err).Msg("mixer output failed")
				return
			}
		}
	}
}
