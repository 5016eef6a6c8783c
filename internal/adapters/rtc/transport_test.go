package rtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceCall/internal/adapters/signal"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/core/coretest"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// answeringServer plays the call server side of publish negotiation.
type answeringServer struct {
	pc           *webrtc.PeerConnection
	published    []signal.PublishRequest
	unpublished  []domain.TrackID
	subscribeErr error
}

func newAnsweringServer(t *testing.T) *answeringServer {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("server pc: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	return &answeringServer{pc: pc}
}

func (s *answeringServer) Publish(_ context.Context, req signal.PublishRequest) (signal.PublishResponse, error) {
	s.published = append(s.published, req)
	answer, err := applyOffer(s.pc, req.SDP)
	if err != nil {
		return signal.PublishResponse{}, err
	}
	return signal.PublishResponse{TrackID: domain.TrackID("srv-" + req.StreamID), SDP: answer}, nil
}

func (s *answeringServer) Unpublish(_ context.Context, id domain.TrackID) error {
	s.unpublished = append(s.unpublished, id)
	return nil
}

func (s *answeringServer) Subscribe(context.Context, domain.TrackID) (signal.Offer, error) {
	return signal.Offer{}, s.subscribeErr
}

func (s *answeringServer) Answer(context.Context, domain.TrackID, string) error { return nil }

func newTestTransport(t *testing.T, neg Negotiator) *Transport {
	t.Helper()
	tr, err := NewTransport(Config{}, neg)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	t.Cleanup(tr.Close)
	return tr
}

func TestPublishReplaceKeepsTrackAndSender(t *testing.T) {
	srv := newAnsweringServer(t)
	tr := newTestTransport(t, srv)
	ctx := context.Background()

	raw := coretest.NewAudio("raw")
	id, err := tr.PublishTrack(ctx, domain.KindAudio, domain.MediaMicrophone, raw)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(srv.published) != 1 || srv.published[0].MediaType != domain.MediaMicrophone {
		t.Fatalf("publish request %+v", srv.published)
	}
	if raw.Sinks() != 1 {
		t.Fatalf("raw source not feeding the track")
	}
	sender := tr.out[id].sender

	processed := coretest.NewAudio("processed")
	if err := tr.ReplaceTrack(ctx, id, processed); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if raw.Sinks() != 0 || processed.Sinks() != 1 {
		t.Fatalf("sinks raw=%d processed=%d", raw.Sinks(), processed.Sinks())
	}
	if tr.out[id].sender != sender {
		t.Fatal("sender changed on replace")
	}
	if len(srv.published) != 1 {
		t.Fatal("replace must not renegotiate")
	}
	processed.Emit(core.Frame(make([]int16, 160)))

	if err := tr.UnpublishTrack(ctx, id); err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	if processed.Sinks() != 0 || len(srv.unpublished) != 1 || srv.unpublished[0] != id {
		t.Fatalf("unpublish left sinks=%d calls=%v", processed.Sinks(), srv.unpublished)
	}
}

func TestReplaceUnknownTrack(t *testing.T) {
	tr := newTestTransport(t, newAnsweringServer(t))
	err := tr.ReplaceTrack(context.Background(), "nope", coretest.NewAudio("x"))
	if !errors.Is(err, ErrUnknownTrack) {
		t.Fatalf("expected ErrUnknownTrack, got %v", err)
	}
}

func TestSubscribeErrorLeavesNoWaiter(t *testing.T) {
	srv := newAnsweringServer(t)
	srv.subscribeErr = signal.ErrRejected
	tr := newTestTransport(t, srv)

	if _, err := tr.SubscribeTrack(context.Background(), "t1"); !errors.Is(err, signal.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if tr.arrivals.pending() != 0 {
		t.Fatal("waiter left behind")
	}
}

func TestClosedTransportRefuses(t *testing.T) {
	tr := newTestTransport(t, newAnsweringServer(t))
	tr.Close()
	tr.Close()
	if _, err := tr.PublishTrack(context.Background(), domain.KindAudio, domain.MediaMicrophone, coretest.NewAudio("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close: %v", err)
	}
	if _, err := tr.SubscribeTrack(context.Background(), "t"); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after close: %v", err)
	}
}

func TestArrivals(t *testing.T) {
	a := newArrivals()
	s := coretest.NewAudio("s1")

	if a.deliver("s1", s) {
		t.Fatal("delivered without a waiter")
	}
	wait := a.expect("s1")
	if !a.deliver("s1", s) {
		t.Fatal("waiter missed")
	}
	select {
	case got := <-wait:
		if got.StreamID() != "s1" {
			t.Fatalf("got %s", got.StreamID())
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}

	closed := a.expect("s2")
	a.closeAll()
	if _, ok := <-closed; ok {
		t.Fatal("waiter not closed")
	}
	if a.pending() != 0 {
		t.Fatal("waiters left")
	}
}
