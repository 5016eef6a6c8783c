package orch

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/app/vad"
	"github.com/dkeye/VoiceCall/internal/core/coretest"
	"github.com/dkeye/VoiceCall/internal/core/mocks"
	"github.com/dkeye/VoiceCall/internal/domain"
)

type harness struct {
	o      *Orchestrator
	in     *loop.Inline
	sig    *mocks.MockSignalingClient
	tr     *mocks.MockTransport
	dev    *mocks.MockMediaDevices
	actx   *coretest.AudioContext
	mic    *coretest.Stream
	events chan domain.Event
	binds  int
	ticks  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		in:     loop.NewInline(),
		sig:    mocks.NewMockSignalingClient(ctrl),
		tr:     mocks.NewMockTransport(ctrl),
		dev:    mocks.NewMockMediaDevices(ctrl),
		actx:   coretest.NewAudioContext(),
		mic:    coretest.NewAudio("mic"),
		events: make(chan domain.Event),
	}
	h.o = New(Deps{
		Signal:     h.sig,
		Transport:  h.tr,
		Devices:    h.dev,
		Suppressor: mocks.NewMockNoiseSuppressor(ctrl),
		Audio:      &coretest.Backend{Ctx: h.actx},
		Tasks:      h.in,
		Bind:       func(<-chan domain.Event, func(domain.Event)) { h.binds++ },
		Every: func(time.Duration, func(time.Time)) func() {
			h.ticks++
			return func() { h.ticks-- }
		},
	}, Options{
		User: domain.LocalUser{ID: "me", Name: "Me"},
		VAD:  vad.Config{Smoothing: 1, Debounce: 100 * time.Millisecond, Hold: 100 * time.Millisecond},
	})
	return h
}

func noErr(t *testing.T) func(error) {
	t.Helper()
	return func(err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.sig.EXPECT().Connect(gomock.Any()).Return(nil)
	h.sig.EXPECT().Events().Return((<-chan domain.Event)(h.events))
	h.o.InitializeCall(noErr(t))
}

func (h *harness) join(t *testing.T, snap *domain.JoinSnapshot) JoinResult {
	t.Helper()
	h.sig.EXPECT().JoinRoom(gomock.Any(), gomock.Any()).Return(snap, nil)
	h.dev.EXPECT().Microphone(gomock.Any()).Return(h.mic, nil)
	h.tr.EXPECT().PublishTrack(gomock.Any(), domain.KindAudio, domain.MediaMicrophone, h.mic).Return(domain.TrackID("m-me"), nil)
	var res JoinResult
	h.o.JoinRoom("lobby", func(r JoinResult, err error) {
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		res = r
	})
	return res
}

func (h *harness) expectSubscribe(id domain.TrackID) *coretest.Stream {
	s := coretest.NewAudio(string(id))
	h.tr.EXPECT().SubscribeTrack(gomock.Any(), id).Return(s, nil)
	return s
}

func peer(pid, uid, name string) domain.PeerJoined {
	return domain.PeerJoined{PeerID: domain.PeerID(pid), UserID: domain.UserID(uid), Name: name, IsAudioEnabled: true}
}

func mic(track, pid string) domain.TrackPublished {
	return domain.TrackPublished{TrackID: domain.TrackID(track), OwnerPeerID: domain.PeerID(pid), Kind: domain.KindAudio, MediaType: domain.MediaMicrophone}
}

func TestInitializeIsReentrant(t *testing.T) {
	h := newHarness(t)
	h.in.Hold = true
	h.sig.EXPECT().Connect(gomock.Any()).Return(nil).Times(1)
	h.sig.EXPECT().Events().Return((<-chan domain.Event)(h.events)).Times(1)

	h.o.InitializeCall(noErr(t))
	h.o.InitializeCall(noErr(t))
	if h.o.State() != Connecting {
		t.Fatalf("state = %s", h.o.State())
	}
	h.in.Flush()
	h.o.InitializeCall(noErr(t))

	if h.o.State() != Connected || h.binds != 1 {
		t.Fatalf("state=%s binds=%d", h.o.State(), h.binds)
	}
}

func TestInitializeFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.sig.EXPECT().Connect(gomock.Any()).Return(errors.New("dial refused"))

	var err error
	h.o.InitializeCall(func(e error) { err = e })
	if !errors.Is(err, domain.ErrSignalingUnavailable) || h.o.State() != Idle {
		t.Fatalf("err=%v state=%s", err, h.o.State())
	}
}

func TestJoinRequiresConnected(t *testing.T) {
	h := newHarness(t)
	var err error
	h.o.JoinRoom("lobby", func(_ JoinResult, e error) { err = e })
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v", err)
	}
}

func TestJoinAppliesSnapshotBeforeQueuedEvents(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.in.Hold = true
	h.expectSubscribe("a1")

	res := JoinResult{}
	h.sig.EXPECT().JoinRoom(gomock.Any(), domain.JoinRequest{RoomID: "lobby", Name: "Me", UserID: "me", IsAudioEnabled: true}).
		Return(&domain.JoinSnapshot{
			ExistingPeers:     []domain.PeerJoined{peer("s1", "u1", "Ann"), peer("s2", "u2", "Bob"), peer("s3", "u3", "Cid")},
			ExistingProducers: []domain.TrackPublished{mic("a1", "s1")},
		}, nil)
	h.dev.EXPECT().Microphone(gomock.Any()).Return(h.mic, nil)
	h.tr.EXPECT().PublishTrack(gomock.Any(), domain.KindAudio, domain.MediaMicrophone, h.mic).Return(domain.TrackID("m-me"), nil)
	h.o.JoinRoom("lobby", func(r JoinResult, err error) {
		if err != nil {
			t.Fatal(err)
		}
		res = r
	})

	// arrive after the join request went out, before its answer
	h.o.HandleEvent(domain.PeerLeft{PeerID: "s2", UserID: "u2"})
	h.o.HandleEvent(domain.PeerMuteStateChanged{PeerID: "s3", IsMuted: true})
	h.in.Flush()

	if h.o.State() != InRoom || res.Peers != 3 || res.ListenOnly {
		t.Fatalf("state=%s res=%+v", h.o.State(), res)
	}
	if h.o.Roster.Has("u2") {
		t.Fatal("queued leave ran before the snapshot")
	}
	if p, _ := h.o.Roster.Peer("u3"); !p.IsMuted {
		t.Fatal("queued mute change lost")
	}
	if !h.o.Media.HasChain("u1") {
		t.Fatal("existing producer not rendered")
	}
	if h.ticks != 1 {
		t.Fatal("detection ticker not started")
	}
}

func TestJoinSnapshotSizeMatchesRoster(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.join(t, &domain.JoinSnapshot{ExistingPeers: []domain.PeerJoined{peer("s1", "u1", "Ann"), peer("s2", "u2", "Bob")}})
	if n := h.o.Roster.Len(); n != 2 {
		t.Fatalf("roster = %d", n)
	}
}

func TestJoinListenOnlyWhenMicDenied(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.sig.EXPECT().JoinRoom(gomock.Any(), gomock.Any()).Return(&domain.JoinSnapshot{}, nil)
	h.dev.EXPECT().Microphone(gomock.Any()).Return(nil, domain.ErrPermissionDenied)

	var res JoinResult
	h.o.JoinRoom("lobby", func(r JoinResult, err error) {
		if err != nil {
			t.Fatal(err)
		}
		res = r
	})
	if !res.ListenOnly || !errors.Is(res.MicErr, domain.ErrPermissionDenied) || h.o.State() != InRoom {
		t.Fatalf("res=%+v state=%s", res, h.o.State())
	}
}

func TestJoinRejectedStaysConnected(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.sig.EXPECT().JoinRoom(gomock.Any(), gomock.Any()).Return(nil, errors.New("room full"))

	var err error
	h.o.JoinRoom("lobby", func(_ JoinResult, e error) { err = e })
	if !errors.Is(err, domain.ErrSignalingUnavailable) || h.o.State() != Connected {
		t.Fatalf("err=%v state=%s", err, h.o.State())
	}
	h.o.HandleEvent(peer("s1", "u1", "Ann"))
	if h.o.Roster.Len() != 0 {
		t.Fatal("event outside room applied")
	}
}

func TestPeerLeftCascades(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.join(t, &domain.JoinSnapshot{})
	h.expectSubscribe("a5")

	h.o.HandleEvent(peer("s5", "u5", "Eve"))
	h.o.HandleEvent(mic("a5", "s5"))
	if !h.o.Media.HasChain("u5") {
		t.Fatal("chain not built")
	}

	h.o.HandleEvent(domain.PeerLeft{PeerID: "s5"})
	h.o.HandleEvent(domain.PeerLeft{PeerID: "s5", UserID: "u5"})

	if h.o.Media.HasChain("u5") || h.o.Roster.Has("u5") || h.o.Producers.OpenCount() != 0 {
		t.Fatal("peer state outlived the peer")
	}
	if h.o.Roster.AliasCount() != 0 {
		t.Fatal("alias kept after leave")
	}
}

func TestLeaveRoomKeepsConnection(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.expectSubscribe("a1")
	h.join(t, &domain.JoinSnapshot{
		ExistingPeers:     []domain.PeerJoined{peer("s1", "u1", "Ann")},
		ExistingProducers: []domain.TrackPublished{mic("a1", "s1")},
	})
	h.tr.EXPECT().UnpublishTrack(gomock.Any(), domain.TrackID("m-me")).Return(nil)
	h.sig.EXPECT().LeaveRoom(gomock.Any()).Return(nil)

	h.o.LeaveRoom(noErr(t))

	if h.o.State() != Connected || h.o.Room() != "" {
		t.Fatalf("state=%s room=%s", h.o.State(), h.o.Room())
	}
	if h.o.Roster.Len() != 0 || h.o.Media.ChainCount() != 0 || h.o.VAD.Running() {
		t.Fatal("room state not released")
	}
	if h.ticks != 0 {
		t.Fatal("ticker still running")
	}
	if h.mic.Live() {
		t.Fatal("microphone still capturing")
	}
}

func TestLeaveThenRejoin(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.join(t, &domain.JoinSnapshot{})
	h.tr.EXPECT().UnpublishTrack(gomock.Any(), gomock.Any()).Return(nil)
	h.sig.EXPECT().LeaveRoom(gomock.Any()).Return(nil)
	h.o.LeaveRoom(noErr(t))

	h.mic = coretest.NewAudio("mic-2")
	h.join(t, &domain.JoinSnapshot{})
	if h.o.State() != InRoom || h.binds != 1 {
		t.Fatalf("state=%s binds=%d", h.o.State(), h.binds)
	}
}

func TestEndCallFromAnyState(t *testing.T) {
	h := newHarness(t)
	h.sig.EXPECT().Close()
	h.tr.EXPECT().Close()

	h.o.EndCall(noErr(t))
	h.o.EndCall(noErr(t))
	if h.o.State() != Ended {
		t.Fatalf("state = %s", h.o.State())
	}
	var err error
	h.o.InitializeCall(func(e error) { err = e })
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatal("ended call re-initialized")
	}
}

func TestEndCallWhileConnecting(t *testing.T) {
	h := newHarness(t)
	h.in.Hold = true
	h.sig.EXPECT().Connect(gomock.Any()).Return(nil)
	h.sig.EXPECT().Close()
	h.tr.EXPECT().Close()

	var err error
	h.o.InitializeCall(func(e error) { err = e })
	h.o.EndCall(noErr(t))
	h.in.Flush()

	if h.o.State() != Ended || !errors.Is(err, domain.ErrInvalidState) || h.binds != 0 {
		t.Fatalf("state=%s err=%v binds=%d", h.o.State(), err, h.binds)
	}
}

func TestLocalStateNotifications(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	gomock.InOrder(
		h.sig.EXPECT().Send(gomock.Any(), domain.MuteState{IsMuted: true}).Return(nil),
		h.sig.EXPECT().Send(gomock.Any(), domain.AudioState{IsEnabled: false, IsGlobalAudioMuted: true, UserID: "me"}).Return(nil),
		h.sig.EXPECT().Send(gomock.Any(), domain.GlobalAudioState{UserID: "me", IsGlobalAudioMuted: true}).Return(nil),
	)
	if !h.o.ToggleMute() {
		t.Fatal("toggle mute")
	}
	if !h.o.ToggleDeafen() {
		t.Fatal("toggle deafen")
	}
}

func TestDeafenVolumeRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.expectSubscribe("a1")
	h.join(t, &domain.JoinSnapshot{
		ExistingPeers:     []domain.PeerJoined{peer("s1", "x", "X")},
		ExistingProducers: []domain.TrackPublished{mic("a1", "s1")},
	})
	h.sig.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	h.o.SetVolume("x", 40)
	h.o.SetDeafened(true)
	h.o.SetDeafened(false)

	snap := h.o.Snapshot()
	if len(snap.Peers) != 1 || snap.Peers[0].Volume != 40 || snap.Peers[0].Gain != 0.4 {
		t.Fatalf("peer view = %+v", snap.Peers)
	}
}

func TestLocalMuteSilencesSpeakingWithinOneTick(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.join(t, &domain.JoinSnapshot{})
	h.mic.SetLevel(100)
	gomock.InOrder(
		h.sig.EXPECT().Send(gomock.Any(), domain.Speaking{Speaking: true}).Return(nil),
		h.sig.EXPECT().Send(gomock.Any(), domain.MuteState{IsMuted: true}).Return(nil),
		h.sig.EXPECT().Send(gomock.Any(), domain.Speaking{Speaking: false}).Return(nil),
	)

	t0 := time.Unix(1000, 0)
	h.o.Tick(t0)
	h.o.Tick(t0.Add(100 * time.Millisecond))
	if !h.o.VAD.LocalSpeaking() {
		t.Fatal("not speaking")
	}
	h.o.SetMuted(true)
	h.o.Tick(t0.Add(120 * time.Millisecond))
	if h.o.Snapshot().Local.Speaking {
		t.Fatal("speaking while muted")
	}
	if h.mic.Enabled() {
		t.Fatal("microphone track still enabled")
	}
}

func TestRemoteSpeakingSuppressedForMutedPeer(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.join(t, &domain.JoinSnapshot{ExistingPeers: []domain.PeerJoined{peer("s1", "u1", "Ann")}})

	h.o.SetPeerMuted("u1", true)
	h.o.HandleEvent(domain.SpeakingStateChanged{PeerID: "s1", Speaking: true})
	if p, _ := h.o.Roster.Peer("u1"); p.IsSpeaking {
		t.Fatal("muted peer shown speaking")
	}
	h.o.SetPeerMuted("u1", false)
	h.o.HandleEvent(domain.SpeakingStateChanged{PeerID: "s1", Speaking: true})
	if p, _ := h.o.Roster.Peer("u1"); !p.IsSpeaking {
		t.Fatal("unmuted peer not shown speaking")
	}
}

func TestCameraRequiresRoom(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	var err error
	h.o.SetCamera(true, func(e error) { err = e })
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v", err)
	}
}
