package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/adapters/audio"
	router "github.com/dkeye/VoiceCall/internal/adapters/http"
	"github.com/dkeye/VoiceCall/internal/adapters/profile"
	"github.com/dkeye/VoiceCall/internal/adapters/rtc"
	sig "github.com/dkeye/VoiceCall/internal/adapters/signal"
	"github.com/dkeye/VoiceCall/internal/app/media"
	"github.com/dkeye/VoiceCall/internal/app/orch"
	"github.com/dkeye/VoiceCall/internal/app/vad"
	"github.com/dkeye/VoiceCall/internal/config"
	"github.com/dkeye/VoiceCall/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	user, err := domain.NewLocalUser(cfg.User.ID, cfg.User.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid local user")
	}
	user.Avatar, user.AvatarColor = cfg.User.Avatar, cfg.User.AvatarColor
	policy, _ := cfg.Policy()
	noiseMode, _ := domain.ParseNoiseMode(cfg.NoiseSuppression.Mode)

	signaling := sig.New(sig.Config{
		URL:        cfg.SignalURL,
		Token:      cfg.AuthToken,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})
	transport, err := rtc.NewTransport(rtc.Config{ICEServers: cfg.ICEServers, SampleRate: cfg.Audio.SampleRate}, signaling)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create transport")
	}
	audioCfg := audio.Config{
		SampleRate:     cfg.Audio.SampleRate,
		FrameMs:        cfg.Audio.FrameMs,
		MicPath:        cfg.Audio.MicPath,
		OutputPath:     cfg.Audio.OutputPath,
		RequireGesture: cfg.Audio.RequireGesture,
	}
	backend, err := audio.NewBackend(audioCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open audio output")
	}
	defer backend.Close()

	// the call outlives ctx so that shutdown can still end it on the loop
	ctl := orch.NewController(context.Background(), orch.Deps{
		Signal:     signaling,
		Transport:  transport,
		Devices:    audio.NewDevices(audioCfg),
		Suppressor: audio.NoiseGate{},
		Audio:      backend,
		Profiles:   profile.NewClient(cfg.APIURL, cfg.AuthToken, cfg.RequestTimeout),
	}, orch.Options{
		User:   *user,
		Policy: policy,
		VAD: vad.Config{
			Threshold: cfg.VAD.Threshold,
			Smoothing: cfg.VAD.Smoothing,
			Debounce:  cfg.VAD.Debounce,
			Hold:      cfg.VAD.Hold,
			Interval:  cfg.VAD.Interval,
		},
		Media:          media.Config{RetryDelay: cfg.PlaybackRetryDelay},
		RequestTimeout: cfg.RequestTimeout,
		Noise:          cfg.NoiseSuppression.Enabled,
		NoiseMode:      noiseMode,
	})

	r := router.SetupRouter(cfg, ctl, backend.Gesture)
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.ControlPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("user_id", user.ID.String()).Msg("call client control API started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	if cfg.Room != "" {
		go autoJoin(ctx, ctl, domain.RoomID(cfg.Room), cfg.RequestTimeout)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	ctl.Close(5 * time.Second)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Call client exited gracefully")
}

// autoJoin connects and enters the configured room on startup.
func autoJoin(ctx context.Context, ctl *orch.Controller, room domain.RoomID, timeout time.Duration) {
	initCtx, cancel := context.WithTimeout(ctx, 2*timeout)
	defer cancel()
	if err := ctl.Init(initCtx); err != nil {
		log.Error().Err(err).Msg("auto connect failed")
		return
	}
	res, err := ctl.Join(initCtx, room)
	if err != nil {
		log.Error().Err(err).Str("room", string(room)).Msg("auto join failed")
		return
	}
	log.Info().
		Str("room", string(room)).
		Int("peers", res.Peers).
		Bool("listen_only", res.ListenOnly).
		Msg("auto joined")
}
