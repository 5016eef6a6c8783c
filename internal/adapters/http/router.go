package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/app/orch"
	"github.com/dkeye/VoiceCall/internal/config"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// CallController is the call surface the API drives. *orch.Controller implements it.
type CallController interface {
	Init(ctx context.Context) error
	Join(ctx context.Context, room domain.RoomID) (orch.JoinResult, error)
	Leave(ctx context.Context) error
	End(ctx context.Context) error
	SetMuted(ctx context.Context, muted bool) error
	ToggleMute(ctx context.Context) (bool, error)
	SetDeafened(ctx context.Context, deafened bool) error
	ToggleDeafen(ctx context.Context) (bool, error)
	SetVolume(ctx context.Context, uid domain.UserID, v int) (int, error)
	SetPeerMuted(ctx context.Context, uid domain.UserID, muted bool) error
	SetCamera(ctx context.Context, enabled bool) error
	SetScreenShare(ctx context.Context, enabled bool) error
	SetNoiseSuppression(ctx context.Context, enabled bool, mode domain.NoiseMode) error
	ResumePlayback(ctx context.Context) error
	SetPolicy(ctx context.Context, p app.MediaTypePolicy) error
	Snapshot(ctx context.Context) (orch.Snapshot, error)
}

var _ CallController = (*orch.Controller)(nil)

const sessionName = "CallSessions"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a controller token to the cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			session.Set("ct", token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the control API. gesture, when set, runs before playback is resumed.
func SetupRouter(cfg *config.Config, ctl CallController, gesture func()) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{ctl: ctl, gesture: gesture, timeout: cfg.RequestTimeout}

	call := r.Group("/api/call")
	call.GET("", h.snapshot)
	call.POST("/init", h.initCall)
	call.POST("/join", h.join)
	call.POST("/leave", h.leave)
	call.POST("/end", h.end)
	call.POST("/mute", h.mute)
	call.POST("/mute/toggle", h.toggleMute)
	call.POST("/deafen", h.deafen)
	call.POST("/deafen/toggle", h.toggleDeafen)
	call.POST("/camera", h.camera)
	call.POST("/screen", h.screen)
	call.POST("/noise", h.noise)
	call.PUT("/policy", h.policy)
	call.PUT("/peers/:id/volume", h.peerVolume)
	call.PUT("/peers/:id/mute", h.peerMute)
	call.POST("/playback/resume", h.resumePlayback)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
