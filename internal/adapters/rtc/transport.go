package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/adapters/signal"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var (
	ErrUnknownTrack = errors.New("unknown local track")
	ErrClosed       = errors.New("transport closed")
)

var _ core.Transport = (*Transport)(nil)

// Negotiator relays SDP to the call server. The signaling client implements it.
type Negotiator interface {
	Publish(ctx context.Context, req signal.PublishRequest) (signal.PublishResponse, error)
	Unpublish(ctx context.Context, id domain.TrackID) error
	Subscribe(ctx context.Context, id domain.TrackID) (signal.Offer, error)
	Answer(ctx context.Context, id domain.TrackID, sdp string) error
}

type Config struct {
	ICEServers []string
	// SampleRate is the PCM rate of local sources and inbound sinks.
	SampleRate int
}

// outTrack is one published local track. The sample track and sender outlive source swaps.
type outTrack struct {
	id     domain.TrackID
	kind   domain.Kind
	sample *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender
	src    core.LocalStream
	remove func()
}

type Transport struct {
	cfg    Config
	pc     *webrtc.PeerConnection
	neg    Negotiator
	logger zerolog.Logger

	// negotiation is strictly sequential on one PeerConnection
	negMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	out      map[domain.TrackID]*outTrack
	arrivals *arrivals
}

func NewTransport(cfg Config, neg Negotiator) (*Transport, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcmuRate
	}
	pc, err := newPeerConnection(cfg.ICEServers)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		cfg:      cfg,
		pc:       pc,
		neg:      neg,
		logger:   log.With().Str("module", "adapters.rtc").Logger(),
		out:      make(map[domain.TrackID]*outTrack),
		arrivals: newArrivals(),
	}
	watchState(pc, t.logger, nil)
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		t.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		s := newRemoteStream(track, receiver, t.cfg.SampleRate, t.logger)
		go s.readLoop()
		if !t.arrivals.deliver(track.StreamID(), s) {
			t.logger.Warn().Str("stream_id", track.StreamID()).Msg("track nobody waits for")
			s.Stop()
		}
	})
	return t, nil
}

func (t *Transport) PublishTrack(ctx context.Context, kind domain.Kind, mt domain.MediaType, src core.LocalStream) (domain.TrackID, error) {
	codec := pcmuCodec()
	if kind == domain.KindVideo {
		codec = vp8Codec()
	}
	streamID := uuid.NewString()
	sample, err := webrtc.NewTrackLocalStaticSample(codec, uuid.NewString(), streamID)
	if err != nil {
		return "", fmt.Errorf("new local track: %w", err)
	}

	t.negMu.Lock()
	defer t.negMu.Unlock()
	if t.isClosed() {
		return "", ErrClosed
	}

	sender, err := t.pc.AddTrack(sample)
	if err != nil {
		return "", fmt.Errorf("add track: %w", err)
	}
	go drainRTCP(sender)

	rollback := func() {
		if err := t.pc.RemoveTrack(sender); err != nil {
			t.logger.Debug().Err(err).Msg("rollback remove track")
		}
	}
	offer, err := createOffer(t.pc)
	if err != nil {
		rollback()
		return "", err
	}
	resp, err := t.neg.Publish(ctx, signal.PublishRequest{Kind: kind, MediaType: mt, StreamID: streamID, SDP: offer})
	if err != nil {
		rollback()
		return "", fmt.Errorf("publish %s: %w", mt, err)
	}
	if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: resp.SDP}); err != nil {
		rollback()
		return "", fmt.Errorf("set remote answer: %w", err)
	}

	ot := &outTrack{id: resp.TrackID, kind: kind, sample: sample, sender: sender}
	t.feed(ot, src)

	t.mu.Lock()
	t.out[ot.id] = ot
	t.mu.Unlock()

	t.logger.Info().Str("track_id", string(ot.id)).Str("media_type", string(mt)).Msg("published")
	return ot.id, nil
}

// ReplaceTrack moves the sample writer to a new source. The sender and track id stay.
func (t *Transport) ReplaceTrack(ctx context.Context, id domain.TrackID, src core.LocalStream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	ot, ok := t.out[id]
	if ok {
		t.feed(ot, src)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("replace %s: %w", id, ErrUnknownTrack)
	}
	t.logger.Info().Str("track_id", string(id)).Str("source", src.StreamID()).Msg("source replaced")
	return nil
}

func (t *Transport) UnpublishTrack(ctx context.Context, id domain.TrackID) error {
	t.mu.Lock()
	ot, ok := t.out[id]
	delete(t.out, id)
	if ok {
		t.unfeed(ot)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("unpublish %s: %w", id, ErrUnknownTrack)
	}

	t.negMu.Lock()
	err := t.pc.RemoveTrack(ot.sender)
	t.negMu.Unlock()
	if err != nil {
		t.logger.Debug().Err(err).Str("track_id", string(id)).Msg("remove track")
	}
	if err := t.neg.Unpublish(ctx, id); err != nil {
		return fmt.Errorf("unpublish %s: %w", id, err)
	}
	return nil
}

// SubscribeTrack asks the server for a track and waits until its media arrives.
func (t *Transport) SubscribeTrack(ctx context.Context, id domain.TrackID) (core.MediaStream, error) {
	t.negMu.Lock()
	if t.isClosed() {
		t.negMu.Unlock()
		return nil, ErrClosed
	}
	offer, err := t.neg.Subscribe(ctx, id)
	if err != nil {
		t.negMu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}
	wait := t.arrivals.expect(offer.StreamID)
	answer, err := applyOffer(t.pc, offer.SDP)
	if err == nil {
		err = t.neg.Answer(ctx, id, answer)
	}
	t.negMu.Unlock()
	if err != nil {
		t.arrivals.cancel(offer.StreamID)
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	select {
	case s, ok := <-wait:
		if !ok {
			return nil, ErrClosed
		}
		return s, nil
	case <-ctx.Done():
		t.arrivals.cancel(offer.StreamID)
		return nil, fmt.Errorf("subscribe %s: %w", id, ctx.Err())
	}
}

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	out := t.out
	t.out = make(map[domain.TrackID]*outTrack)
	t.mu.Unlock()

	for _, ot := range out {
		t.unfeed(ot)
	}
	t.arrivals.closeAll()
	if err := t.pc.Close(); err != nil {
		t.logger.Error().Err(err).Msg("close error")
		return
	}
	t.logger.Info().Msg("closed")
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// feed points the sample track at src, detaching the previous source. Callers hold t.mu
// unless the track is not yet shared.
func (t *Transport) feed(ot *outTrack, src core.LocalStream) {
	t.unfeed(ot)
	ot.src = src
	if ot.kind != domain.KindAudio {
		return
	}
	rate := t.cfg.SampleRate
	ot.remove = src.AddSink(func(f core.Frame) {
		pcm := resample(f, rate, pcmuRate)
		err := ot.sample.WriteSample(media.Sample{
			Data:     encodePCMU(pcm),
			Duration: time.Duration(len(pcm)) * time.Second / pcmuRate,
		})
		if err != nil {
			t.logger.Debug().Err(err).Str("track_id", string(ot.id)).Msg("write sample")
		}
	})
}

func (t *Transport) unfeed(ot *outTrack) {
	if ot.remove != nil {
		ot.remove()
		ot.remove = nil
	}
}

// drainRTCP keeps the interceptors fed.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
