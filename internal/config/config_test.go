package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/VoiceCall/internal/app"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileWithDefaults(t *testing.T) {
	path := writeYAML(t, `
user:
  id: u-42
  name: Ann
room: lobby
vad:
  hold: 300ms
audio:
  mic_path: /tmp/mic.pcm
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.User.ID != "u-42" || cfg.User.Name != "Ann" || cfg.Room != "lobby" {
		t.Fatalf("user/room %+v %q", cfg.User, cfg.Room)
	}
	if cfg.VAD.Hold != 300*time.Millisecond || cfg.VAD.Threshold != 15 || cfg.VAD.Interval != 50*time.Millisecond {
		t.Fatalf("vad %+v", cfg.VAD)
	}
	if cfg.Audio.SampleRate != 8000 || cfg.Audio.FrameMs != 20 || cfg.Audio.MicPath != "/tmp/mic.pcm" {
		t.Fatalf("audio %+v", cfg.Audio)
	}
	if cfg.PingPeriod != 54*time.Second || cfg.PlaybackRetryDelay != time.Second {
		t.Fatalf("durations %v %v", cfg.PingPeriod, cfg.PlaybackRetryDelay)
	}
	if p, _ := cfg.Policy(); p != app.InferFromPeerState {
		t.Fatalf("policy %v", p)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeYAML(t, "user:\n  id: from-file\nmedia_type_policy: infer\n")
	t.Setenv("CALL_USER_ID", "from-env")
	t.Setenv("CALL_MEDIA_TYPE_POLICY", "strict")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.User.ID != "from-env" {
		t.Fatalf("user id %q", cfg.User.ID)
	}
	if p, _ := cfg.Policy(); p != app.RejectUntagged {
		t.Fatalf("policy %v", p)
	}
}

func TestValidation(t *testing.T) {
	if _, err := LoadFile(writeYAML(t, "room: x\n")); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if _, err := LoadFile(writeYAML(t, "user:\n  id: u\nmedia_type_policy: guess\n")); err == nil {
		t.Fatal("unknown policy accepted")
	}
	if _, err := LoadFile(writeYAML(t, "user:\n  id: u\nnoise_suppression:\n  mode: loud\n")); err == nil {
		t.Fatal("unknown noise mode accepted")
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CALL_USER_ID", "env-only")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ControlPort != 8090 || cfg.User.ID != "env-only" {
		t.Fatalf("cfg %+v", cfg)
	}
}
