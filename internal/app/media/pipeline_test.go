package media

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/core/coretest"
	"github.com/dkeye/VoiceCall/internal/core/mocks"
	"github.com/dkeye/VoiceCall/internal/domain"
)

type fixture struct {
	p          *Pipeline
	in         *loop.Inline
	actx       *coretest.AudioContext
	backend    *coretest.Backend
	transport  *mocks.MockTransport
	devices    *mocks.MockMediaDevices
	suppressor *mocks.MockNoiseSuppressor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		in:         loop.NewInline(),
		actx:       coretest.NewAudioContext(),
		transport:  mocks.NewMockTransport(ctrl),
		devices:    mocks.NewMockMediaDevices(ctrl),
		suppressor: mocks.NewMockNoiseSuppressor(ctrl),
	}
	f.backend = &coretest.Backend{Ctx: f.actx}
	f.p = New(Config{}, f.backend, f.transport, f.devices, f.suppressor, f.in)
	return f
}

func ref(uid string) domain.PeerRef { return domain.PeerRef{UserID: domain.UserID(uid), Epoch: 1} }

func mustAttach(t *testing.T, p *Pipeline, uid, track string) *coretest.Stream {
	t.Helper()
	s := coretest.NewAudio(track)
	if err := p.Attach(ref(uid), domain.TrackID(track), s); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return s
}

func capture(err *error) func(error) {
	return func(e error) { *err = e }
}

func TestDeafenPreservesVolume(t *testing.T) {
	f := newFixture(t)
	mustAttach(t, f.p, "x", "t1")

	f.p.SetVolume("x", 40)
	if g := f.p.Gain("x"); g != 0.4 {
		t.Fatalf("gain = %v, want 0.4", g)
	}
	f.p.SetDeafen(true)
	if g := f.p.Gain("x"); g != 0 {
		t.Fatalf("deafened gain = %v", g)
	}
	if v := f.p.Volume("x"); v != 40 {
		t.Fatalf("volume overwritten: %d", v)
	}
	f.p.SetDeafen(false)
	if g := f.p.Gain("x"); g != 0.4 {
		t.Fatalf("restored gain = %v, want 0.4", g)
	}
}

func TestDeafenAppliesToLaterChains(t *testing.T) {
	f := newFixture(t)
	f.p.SetDeafen(true)
	mustAttach(t, f.p, "late", "t1")
	if g := f.p.Gain("late"); g != 0 {
		t.Fatalf("new chain under deafen has gain %v", g)
	}
}

func TestVolumeClamped(t *testing.T) {
	f := newFixture(t)
	if v := f.p.SetVolume("x", 180); v != 100 {
		t.Fatalf("clamp high = %d", v)
	}
	if v := f.p.SetVolume("x", -5); v != 0 {
		t.Fatalf("clamp low = %d", v)
	}
}

func TestReplacementKeepsChainAndSettings(t *testing.T) {
	f := newFixture(t)
	first := mustAttach(t, f.p, "x", "t1")
	f.p.SetVolume("x", 30)
	f.p.SetIndividualMute("x", true)

	mustAttach(t, f.p, "x", "t2")

	if len(f.actx.Gains) != 1 || len(f.actx.Sinks) != 1 {
		t.Fatalf("chain rebuilt: gains=%d sinks=%d", len(f.actx.Gains), len(f.actx.Sinks))
	}
	if id, _ := f.p.ChainTrack("x"); id != "t2" {
		t.Fatalf("chain track = %s", id)
	}
	if first.Stops() != 1 {
		t.Fatal("replaced stream not stopped")
	}
	if f.actx.Sources[0].Disconnects != 1 || f.actx.Sources[1].Connected != f.actx.Gains[0] {
		t.Fatal("source not swapped onto existing gain")
	}
	if g := f.p.Gain("x"); g != 0 {
		t.Fatalf("individual mute lost: %v", g)
	}
	f.p.SetIndividualMute("x", false)
	if g := f.p.Gain("x"); g != 0.3 {
		t.Fatalf("volume lost: %v", g)
	}
}

func TestPartialChainTeardown(t *testing.T) {
	f := newFixture(t)
	f.actx.SinkErr = errors.New("no output device")

	err := f.p.Attach(ref("x"), "t1", coretest.NewAudio("t1"))
	if err == nil {
		t.Fatal("expected build error")
	}
	if f.p.HasChain("x") {
		t.Fatal("partial chain kept")
	}
	if f.actx.Sources[0].Disconnects != 1 || f.actx.Gains[0].Disconnects != 1 {
		t.Fatal("created stages not released")
	}
	if f.p.Teardown("x") {
		t.Fatal("second teardown should be a no-op")
	}
}

func TestDetachTrackOnlyMatchingTrack(t *testing.T) {
	f := newFixture(t)
	mustAttach(t, f.p, "x", "t1")

	if f.p.DetachTrack("x", "other") {
		t.Fatal("unrelated track tore the chain down")
	}
	if !f.p.DetachTrack("x", "t1") {
		t.Fatal("matching track did not tear down")
	}
	sink := f.actx.Sinks[0]
	if !sink.Stopped || !sink.Detached {
		t.Fatal("sink not stopped and detached")
	}
}

func TestAutoplayRetryOnceThenBlocked(t *testing.T) {
	f := newFixture(t)
	f.actx.BlockPlays = 2
	mustAttach(t, f.p, "x", "t1")

	sink := f.actx.Sinks[0]
	if sink.Plays != 1 || f.in.PendingTimers() != 1 {
		t.Fatalf("plays=%d timers=%d", sink.Plays, f.in.PendingTimers())
	}
	if d := f.in.LastDelay(); d != time.Second {
		t.Fatalf("retry delay = %v", d)
	}
	f.in.Fire()
	if sink.Plays != 2 {
		t.Fatalf("plays after retry = %d", sink.Plays)
	}
	if !f.p.PlaybackBlocked() {
		t.Fatal("blocked flag not raised")
	}
	if f.in.PendingTimers() != 0 {
		t.Fatal("retried more than once")
	}

	var err error = errors.New("unset")
	f.p.ResumePlayback(capture(&err))
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if f.p.PlaybackBlocked() || !sink.Playing {
		t.Fatal("resume did not clear blocked state")
	}
}

func TestAutoplayRetrySucceeds(t *testing.T) {
	f := newFixture(t)
	f.actx.BlockPlays = 1
	mustAttach(t, f.p, "x", "t1")
	f.in.Fire()
	if f.p.PlaybackBlocked() || !f.actx.Sinks[0].Playing {
		t.Fatal("retry should have started playback")
	}
}

func TestAutoplayRetryDroppedAfterTeardown(t *testing.T) {
	f := newFixture(t)
	f.actx.BlockPlays = 1
	mustAttach(t, f.p, "x", "t1")
	f.p.Teardown("x")
	f.in.Fire()
	if f.actx.Sinks[0].Plays != 1 {
		t.Fatal("retry ran against a torn down chain")
	}
}

func TestAudioContextLazyAndResumed(t *testing.T) {
	f := newFixture(t)
	if f.backend.Created != 0 {
		t.Fatal("context created eagerly")
	}
	mustAttach(t, f.p, "a", "t1")
	f.actx.Suspend()
	mustAttach(t, f.p, "b", "t2")

	if f.backend.Created != 1 {
		t.Fatalf("contexts created = %d", f.backend.Created)
	}
	if f.actx.Resumes != 1 || f.actx.State() != core.AudioRunning {
		t.Fatal("suspended context not resumed")
	}
}

func TestMicrophonePublishedOnceAndMutedInPlace(t *testing.T) {
	f := newFixture(t)
	mic := coretest.NewAudio("mic")
	f.devices.EXPECT().Microphone(gomock.Any()).Return(mic, nil)
	f.transport.EXPECT().PublishTrack(gomock.Any(), domain.KindAudio, domain.MediaMicrophone, mic).Return(domain.TrackID("m1"), nil)

	var err error
	f.p.PublishMicrophone(capture(&err))
	f.p.PublishMicrophone(capture(&err))
	if err != nil {
		t.Fatal(err)
	}
	f.p.SetMuted(true)
	if mic.Enabled() {
		t.Fatal("mute should disable the track")
	}
	f.p.SetMuted(false)
	if !mic.Enabled() {
		t.Fatal("unmute should enable the track")
	}
	if st := f.p.LocalState(); !st.MicPublished || st.MicTrack != "m1" {
		t.Fatalf("local state = %+v", st)
	}
}

func TestMicrophoneDeniedLeavesChains(t *testing.T) {
	f := newFixture(t)
	mustAttach(t, f.p, "x", "t1")
	f.devices.EXPECT().Microphone(gomock.Any()).Return(nil, fmt.Errorf("mic: %w", domain.ErrPermissionDenied))

	var err error
	f.p.PublishMicrophone(capture(&err))
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if !f.p.HasChain("x") || f.actx.Sinks[0].Stopped {
		t.Fatal("denial touched an existing chain")
	}
}

func TestNoiseToggleReplacesInPlace(t *testing.T) {
	f := newFixture(t)
	mic := coretest.NewAudio("mic")
	clean := coretest.NewAudio("clean")
	f.devices.EXPECT().Microphone(gomock.Any()).Return(mic, nil)
	f.transport.EXPECT().PublishTrack(gomock.Any(), domain.KindAudio, domain.MediaMicrophone, mic).Return(domain.TrackID("m1"), nil).Times(1)
	f.suppressor.EXPECT().Process(gomock.Any(), mic, domain.NoiseHigh).Return(clean, nil)
	f.transport.EXPECT().ReplaceTrack(gomock.Any(), domain.TrackID("m1"), clean).Return(nil)
	f.transport.EXPECT().ReplaceTrack(gomock.Any(), domain.TrackID("m1"), mic).Return(nil)

	var err error
	f.p.PublishMicrophone(capture(&err))
	f.p.SetNoiseSuppression(true, domain.NoiseHigh, capture(&err))
	if err != nil {
		t.Fatal(err)
	}
	if st := f.p.LocalState(); !st.NoiseActive || st.MicTrack != "m1" {
		t.Fatalf("after enable: %+v", st)
	}

	f.p.SetNoiseSuppression(false, "", capture(&err))
	if err != nil {
		t.Fatal(err)
	}
	if st := f.p.LocalState(); st.NoiseActive || st.MicTrack != "m1" {
		t.Fatalf("after disable: %+v", st)
	}
	if clean.Stops() != 1 {
		t.Fatal("processed stream not stopped after disable")
	}
}

func TestNoiseFailureFallsBackToOriginal(t *testing.T) {
	f := newFixture(t)
	mic := coretest.NewAudio("mic")
	f.devices.EXPECT().Microphone(gomock.Any()).Return(mic, nil)
	f.transport.EXPECT().PublishTrack(gomock.Any(), gomock.Any(), gomock.Any(), mic).Return(domain.TrackID("m1"), nil)
	f.suppressor.EXPECT().Process(gomock.Any(), mic, domain.NoiseLow).Return(nil, errors.New("model not loaded"))

	var err error
	f.p.PublishMicrophone(capture(&err))
	f.p.SetNoiseSuppression(true, domain.NoiseLow, capture(&err))
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	st := f.p.LocalState()
	if st.NoiseActive || !st.NoiseSuppressed || st.NoiseMode != domain.NoiseLow {
		t.Fatalf("state = %+v", st)
	}
}

func TestPickSourceOrder(t *testing.T) {
	live := func(id string) *coretest.Stream { return coretest.NewAudio(id) }
	dead := func(id string) *coretest.Stream {
		s := coretest.NewAudio(id)
		s.End()
		return s
	}
	tests := []struct {
		name                string
		processed, orig, ll core.LocalStream
		want                string
		err                 error
	}{
		{"processed first", live("p"), live("o"), live("l"), "p", nil},
		{"original when processed missing", nil, live("o"), live("l"), "o", nil},
		{"original when processed ended", dead("p"), live("o"), nil, "o", nil},
		{"last live", nil, dead("o"), live("l"), "l", nil},
		{"nothing live", dead("p"), dead("o"), dead("l"), "", domain.ErrNoLiveSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickSource(tt.processed, tt.orig, tt.ll)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if err == nil && got.StreamID() != tt.want {
				t.Fatalf("picked %s, want %s", got.StreamID(), tt.want)
			}
		})
	}
}

func TestReleaseDiscardsInFlightMicrophone(t *testing.T) {
	f := newFixture(t)
	f.in.Hold = true
	mic := coretest.NewAudio("mic")
	f.devices.EXPECT().Microphone(gomock.Any()).Return(mic, nil)
	f.transport.EXPECT().PublishTrack(gomock.Any(), gomock.Any(), gomock.Any(), mic).Return(domain.TrackID("m1"), nil)
	f.transport.EXPECT().UnpublishTrack(gomock.Any(), domain.TrackID("m1")).Return(nil)

	var err error
	f.p.PublishMicrophone(capture(&err))
	f.p.ReleaseLocal()
	f.in.Flush()

	if f.p.LocalState().MicPublished {
		t.Fatal("stale microphone installed")
	}
	if mic.Live() {
		t.Fatal("stale microphone still capturing")
	}
}

func TestCameraDeniedReported(t *testing.T) {
	f := newFixture(t)
	f.devices.EXPECT().Camera(gomock.Any()).Return(nil, domain.ErrPermissionDenied)

	var err error
	f.p.SetCamera(true, capture(&err))
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if f.p.LocalState().VideoEnabled {
		t.Fatal("camera flagged on after denial")
	}
}

func TestCameraPublishAndUnpublish(t *testing.T) {
	f := newFixture(t)
	cam := coretest.NewStream("cam", domain.KindVideo)
	f.devices.EXPECT().Camera(gomock.Any()).Return(cam, nil)
	f.transport.EXPECT().PublishTrack(gomock.Any(), domain.KindVideo, domain.MediaCamera, cam).Return(domain.TrackID("v1"), nil)
	f.transport.EXPECT().UnpublishTrack(gomock.Any(), domain.TrackID("v1")).Return(nil)

	var err error
	f.p.SetCamera(true, capture(&err))
	if err != nil || !f.p.LocalState().VideoEnabled {
		t.Fatalf("enable: err=%v", err)
	}
	f.p.SetCamera(false, capture(&err))
	if err != nil || f.p.LocalState().VideoEnabled || cam.Live() {
		t.Fatalf("disable: err=%v", err)
	}
}
