package rtc

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// remoteStream is an inbound track decoded to PCM frames.
type remoteStream struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	kind     domain.Kind
	rate     int
	logger   zerolog.Logger

	out  core.Fanout
	live atomic.Bool
	stop sync.Once
}

func newRemoteStream(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver, rate int, logger zerolog.Logger) *remoteStream {
	kind := domain.KindAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.KindVideo
	}
	s := &remoteStream{
		track:    track,
		receiver: receiver,
		kind:     kind,
		rate:     rate,
		logger:   logger.With().Str("stream_id", track.StreamID()).Str("kind", string(kind)).Logger(),
	}
	s.live.Store(true)
	return s
}

func (s *remoteStream) StreamID() string  { return s.track.StreamID() }
func (s *remoteStream) Kind() domain.Kind { return s.kind }
func (s *remoteStream) Live() bool        { return s.live.Load() }

func (s *remoteStream) AddSink(fn func(core.Frame)) func() { return s.out.Add(fn) }

func (s *remoteStream) Stop() {
	s.stop.Do(func() {
		s.live.Store(false)
		if err := s.receiver.Stop(); err != nil {
			s.logger.Debug().Err(err).Msg("receiver stop")
		}
	})
}

// readLoop pulls RTP until the track ends. Video payloads are drained.
func (s *remoteStream) readLoop() {
	defer s.live.Store(false)

	isPCMU := s.track.Codec().MimeType == webrtc.MimeTypePCMU
	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}
	for {
		n, _, err := s.track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.live.Load() {
				s.logger.Debug().Err(err).Msg("track read ended")
			}
			return
		}
		if s.kind != domain.KindAudio || !isPCMU {
			continue
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Debug().Err(err).Msg("bad rtp packet")
			continue
		}
		s.out.Emit(resample(decodePCMU(pkt.Payload), pcmuRate, s.rate))
	}
}
