package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var _ core.MediaDevices = (*Devices)(nil)

// Devices captures the microphone from a raw s16le PCM file.
// There is no camera or screen on a headless host.
type Devices struct {
	cfg    Config
	logger zerolog.Logger
}

func NewDevices(cfg Config) *Devices {
	return &Devices{cfg: cfg.withDefaults(), logger: log.With().Str("module", "adapters.audio").Logger()}
}

func (d *Devices) Microphone(ctx context.Context) (core.LocalStream, error) {
	if d.cfg.MicPath == "" {
		return nil, fmt.Errorf("microphone: %w: no capture source configured", domain.ErrPermissionDenied)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.cfg.MicPath)
	if err != nil {
		return nil, fmt.Errorf("microphone: %w: %v", domain.ErrPermissionDenied, err)
	}
	s := NewPCMStream(f, d.cfg, d.logger)
	d.logger.Info().Str("path", d.cfg.MicPath).Str("stream_id", s.StreamID()).Msg("microphone opened")
	return s, nil
}

func (d *Devices) Camera(context.Context) (core.LocalStream, error) {
	return nil, fmt.Errorf("camera: %w: no capture device on this host", domain.ErrPermissionDenied)
}

func (d *Devices) Screen(context.Context) (core.LocalStream, error) {
	return nil, fmt.Errorf("screen: %w: no display to capture on this host", domain.ErrPermissionDenied)
}

// PCMStream paces frames out of a PCM source at real time. The source loops at EOF
// when it can seek.
type PCMStream struct {
	id       string
	src      io.ReadCloser
	frameLen int
	period   time.Duration
	logger   zerolog.Logger

	out     core.Fanout
	live    atomic.Bool
	enabled atomic.Bool
	level   atomic.Uint64

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewPCMStream(src io.ReadCloser, cfg Config, logger zerolog.Logger) *PCMStream {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &PCMStream{
		id:       uuid.NewString(),
		src:      src,
		frameLen: cfg.frameLen(),
		period:   cfg.period(),
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.live.Store(true)
	s.enabled.Store(true)
	go s.run(ctx)
	return s
}

func (s *PCMStream) StreamID() string  { return s.id }
func (s *PCMStream) Kind() domain.Kind { return domain.KindAudio }
func (s *PCMStream) Live() bool        { return s.live.Load() }

func (s *PCMStream) AddSink(fn func(core.Frame)) func() { return s.out.Add(fn) }

func (s *PCMStream) SetEnabled(enabled bool) { s.enabled.Store(enabled) }
func (s *PCMStream) Enabled() bool           { return s.enabled.Load() }
func (s *PCMStream) Level() float64          { return math.Float64frombits(s.level.Load()) }

func (s *PCMStream) Stop() {
	s.stopOnce.Do(func() {
		s.live.Store(false)
		s.cancel()
		<-s.done
		_ = s.src.Close()
	})
}

func (s *PCMStream) run(ctx context.Context) {
	defer close(s.done)
	defer s.live.Store(false)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	buf := make([]byte, 2*s.frameLen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.readFrame(buf); err != nil {
			s.logger.Info().Err(err).Str("stream_id", s.id).Msg("capture ended")
			return
		}
		f := make(core.Frame, s.frameLen)
		if s.enabled.Load() {
			for i := range f {
				f[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
			}
		}
		s.level.Store(math.Float64bits(Level(f)))
		s.out.Emit(f)
	}
}

func (s *PCMStream) readFrame(buf []byte) error {
	_, err := io.ReadFull(s.src, buf)
	if err == nil {
		return nil
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	seeker, ok := s.src.(io.Seeker)
	if !ok {
		return err
	}
	if _, serr := seeker.Seek(0, io.SeekStart); serr != nil {
		return serr
	}
	_, err = io.ReadFull(s.src, buf)
	return err
}

// Level is the mean absolute amplitude of f on a 0-255 scale.
func Level(f core.Frame) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(f)) * 255 / 32768
}
