package vad

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/app/roster"
	"github.com/dkeye/VoiceCall/internal/core/mocks"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func testConfig() Config {
	return Config{Threshold: 15, Smoothing: 1, Debounce: 200 * time.Millisecond, Hold: 200 * time.Millisecond}
}

func TestDetectorHysteresis(t *testing.T) {
	d := NewDetector(testConfig())
	var transitions []bool
	feed := func(level float64, from, to int) {
		for ms := from; ms <= to; ms += 20 {
			if s, changed := d.Sample(level, at(ms), false); changed {
				transitions = append(transitions, s)
			}
		}
	}

	feed(80, 0, 180)
	if len(transitions) != 0 {
		t.Fatal("speaking before debounce elapsed")
	}
	feed(80, 200, 600)
	feed(2, 620, 800)
	if len(transitions) != 1 {
		t.Fatalf("transitions before hold elapsed: %v", transitions)
	}
	feed(2, 820, 1200)

	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Fatalf("transitions = %v, want [true false]", transitions)
	}
}

func TestDetectorShortBurstIgnored(t *testing.T) {
	d := NewDetector(testConfig())
	for ms := 0; ms < 100; ms += 20 {
		d.Sample(90, at(ms), false)
	}
	for ms := 100; ms < 400; ms += 20 {
		if s, _ := d.Sample(0, at(ms), false); s {
			t.Fatal("burst shorter than debounce reported as speech")
		}
	}
}

func TestDetectorMutedForcesSilence(t *testing.T) {
	d := NewDetector(testConfig())
	for ms := 0; ms <= 300; ms += 20 {
		d.Sample(100, at(ms), false)
	}
	if !d.Speaking() {
		t.Fatal("precondition: should be speaking")
	}
	s, changed := d.Sample(100, at(320), true)
	if s || !changed {
		t.Fatalf("muted sample = %v, %v", s, changed)
	}
	for ms := 340; ms <= 1000; ms += 20 {
		if s, changed := d.Sample(200, at(ms), true); s || changed {
			t.Fatal("muted detector emitted")
		}
	}
}

func TestDetectorSmoothing(t *testing.T) {
	d := NewDetector(Config{Threshold: 15, Smoothing: 0.3})
	d.Sample(100, t0, false)
	if got := d.Smoothed(); got < 29.99 || got > 30.01 {
		t.Fatalf("smoothed = %v, want 30", got)
	}
}

func TestDefaults(t *testing.T) {
	cfg := NewDetector(Config{}).Config()
	if cfg.Threshold != 15 || cfg.Smoothing != 0.3 || cfg.Hold != 200*time.Millisecond || cfg.Interval != DefaultInterval {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestCoordinatorEmitsEachTransitionOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalingClient(ctrl)
	gomock.InOrder(
		sig.EXPECT().Send(gomock.Any(), domain.Speaking{Speaking: true}).Return(nil),
		sig.EXPECT().Send(gomock.Any(), domain.Speaking{Speaking: false}).Return(nil),
	)

	c := NewCoordinator(testConfig(), sig, roster.New(nil, loop.NewInline()), nil, loop.NewInline())
	c.Start()
	for ms := 0; ms <= 1000; ms += 20 {
		c.Tick(at(ms), 90, false)
	}
	for ms := 1020; ms <= 2000; ms += 20 {
		c.Tick(at(ms), 0, false)
	}
}

func TestCoordinatorMuteForcesFalseWithinOneTick(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalingClient(ctrl)
	sig.EXPECT().Send(gomock.Any(), domain.Speaking{Speaking: true}).Return(nil)
	sig.EXPECT().Send(gomock.Any(), domain.Speaking{Speaking: false}).Return(nil)

	c := NewCoordinator(testConfig(), sig, roster.New(nil, loop.NewInline()), nil, loop.NewInline())
	c.Start()
	for ms := 0; ms <= 400; ms += 20 {
		c.Tick(at(ms), 120, false)
	}
	c.Tick(at(420), 120, true)
	if c.LocalSpeaking() {
		t.Fatal("still speaking after mute")
	}
	for ms := 440; ms <= 1000; ms += 20 {
		c.Tick(at(ms), 120, true)
	}
}

func TestCoordinatorSerializesSends(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalingClient(ctrl)
	sig.EXPECT().Send(gomock.Any(), domain.Speaking{Speaking: true}).Return(nil)

	in := loop.NewInline()
	in.Hold = true
	c := NewCoordinator(testConfig(), sig, roster.New(nil, loop.NewInline()), nil, in)
	c.Start()
	for ms := 0; ms <= 300; ms += 20 {
		c.Tick(at(ms), 120, false)
	}
	// true is in flight; mute flips the wanted state twice before it completes
	c.Tick(at(320), 120, true)
	for ms := 340; ms <= 700; ms += 20 {
		c.Tick(at(ms), 120, false)
	}
	in.Flush()
	if got := len(in.Started); got != 1 {
		t.Fatalf("sends started = %d, want 1", got)
	}
}

func TestCoordinatorSendFailureIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalingClient(ctrl)
	sig.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("closed"))

	c := NewCoordinator(testConfig(), sig, roster.New(nil, loop.NewInline()), nil, loop.NewInline())
	c.Start()
	for ms := 0; ms <= 300; ms += 20 {
		c.Tick(at(ms), 120, false)
	}
	if !c.LocalSpeaking() {
		t.Fatal("local state should not depend on broadcast success")
	}
}

type muteSet map[domain.UserID]bool

func (m muteSet) IndividuallyMuted(uid domain.UserID) bool { return m[uid] }

func TestRemoteSpeaking(t *testing.T) {
	r := roster.New(nil, loop.NewInline())
	r.OnPeerJoined(domain.PeerJoined{PeerID: "s1", UserID: "u1", Name: "Ann"})
	r.OnPeerJoined(domain.PeerJoined{PeerID: "s2", UserID: "u2", Name: "Bob"})
	c := NewCoordinator(testConfig(), nil, r, muteSet{"u2": true}, loop.NewInline())

	c.OnSpeakingStateChanged(domain.SpeakingStateChanged{PeerID: "s1", Speaking: true})
	c.OnSpeakingStateChanged(domain.SpeakingStateChanged{PeerID: "s2", Speaking: true})
	c.OnSpeakingStateChanged(domain.SpeakingStateChanged{PeerID: "ghost", Speaking: true})

	if p, _ := r.Peer("u1"); !p.IsSpeaking {
		t.Fatal("peer resolved via alias not marked speaking")
	}
	if p, _ := r.Peer("u2"); p.IsSpeaking {
		t.Fatal("individually muted peer marked speaking")
	}
	if r.Len() != 2 {
		t.Fatal("unknown peer added to roster")
	}
}

func TestRemoteSpeakingByUserIDFallback(t *testing.T) {
	r := roster.New(nil, loop.NewInline())
	r.OnPeerJoined(domain.PeerJoined{PeerID: "s1", UserID: "u1", Name: "Ann"})
	c := NewCoordinator(testConfig(), nil, r, nil, loop.NewInline())

	c.OnSpeakingStateChanged(domain.SpeakingStateChanged{PeerID: "unknown-sock", UserID: "u1", Speaking: true})
	if p, _ := r.Peer("u1"); !p.IsSpeaking {
		t.Fatal("user id on event not used")
	}
}
