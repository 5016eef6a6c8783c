package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/domain"
)

type handlers struct {
	ctl     CallController
	gesture func()
	timeout time.Duration
}

type JoinRequest struct {
	Room string `json:"room"`
}

type FlagRequest struct {
	Muted    *bool `json:"muted,omitempty"`
	Deafened *bool `json:"deafened,omitempty"`
	Enabled  *bool `json:"enabled,omitempty"`
}

type NoiseRequest struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"`
}

type VolumeRequest struct {
	Volume *int `json:"volume"`
}

type PolicyRequest struct {
	Policy string `json:"policy"`
}

func (h *handlers) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func logCommand(c *gin.Context, cmd string) {
	log.Info().
		Str("module", "adapters.http").
		Str("ct", c.GetString("client_token")).
		Str("cmd", cmd).
		Msg("command")
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// fail maps call errors onto status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrPlaybackBlocked):
		status = http.StatusPreconditionRequired
	case errors.Is(err, domain.ErrSignalingUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrNoLiveSource):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	log.Warn().Err(err).Str("module", "adapters.http").Int("status", status).Str("path", c.FullPath()).Msg("command failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

// run executes a command that only reports success, then answers with the new snapshot.
func (h *handlers) run(c *gin.Context, cmd string, fn func(ctx context.Context) error) {
	logCommand(c, cmd)
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := fn(ctx); err != nil {
		fail(c, err)
		return
	}
	snap, err := h.ctl.Snapshot(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) snapshot(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()
	snap, err := h.ctl.Snapshot(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) initCall(c *gin.Context) {
	h.run(c, "init", h.ctl.Init)
}

func (h *handlers) join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Room == "" {
		badRequest(c, "missing or invalid room")
		return
	}
	logCommand(c, "join")
	ctx, cancel := h.ctx(c)
	defer cancel()
	res, err := h.ctl.Join(ctx, domain.RoomID(req.Room))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) leave(c *gin.Context) {
	h.run(c, "leave", h.ctl.Leave)
}

func (h *handlers) end(c *gin.Context) {
	h.run(c, "end", h.ctl.End)
}

func bindFlag(c *gin.Context, pick func(FlagRequest) *bool, name string) (bool, bool) {
	var req FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil || pick(req) == nil {
		badRequest(c, "missing or invalid "+name)
		return false, false
	}
	return *pick(req), true
}

func (h *handlers) mute(c *gin.Context) {
	muted, ok := bindFlag(c, func(r FlagRequest) *bool { return r.Muted }, "muted")
	if !ok {
		return
	}
	h.run(c, "mute", func(ctx context.Context) error { return h.ctl.SetMuted(ctx, muted) })
}

func (h *handlers) toggleMute(c *gin.Context) {
	h.run(c, "mute.toggle", func(ctx context.Context) error {
		_, err := h.ctl.ToggleMute(ctx)
		return err
	})
}

func (h *handlers) deafen(c *gin.Context) {
	deafened, ok := bindFlag(c, func(r FlagRequest) *bool { return r.Deafened }, "deafened")
	if !ok {
		return
	}
	h.run(c, "deafen", func(ctx context.Context) error { return h.ctl.SetDeafened(ctx, deafened) })
}

func (h *handlers) toggleDeafen(c *gin.Context) {
	h.run(c, "deafen.toggle", func(ctx context.Context) error {
		_, err := h.ctl.ToggleDeafen(ctx)
		return err
	})
}

func (h *handlers) camera(c *gin.Context) {
	enabled, ok := bindFlag(c, func(r FlagRequest) *bool { return r.Enabled }, "enabled")
	if !ok {
		return
	}
	h.run(c, "camera", func(ctx context.Context) error { return h.ctl.SetCamera(ctx, enabled) })
}

func (h *handlers) screen(c *gin.Context) {
	enabled, ok := bindFlag(c, func(r FlagRequest) *bool { return r.Enabled }, "enabled")
	if !ok {
		return
	}
	h.run(c, "screen", func(ctx context.Context) error { return h.ctl.SetScreenShare(ctx, enabled) })
}

func (h *handlers) noise(c *gin.Context) {
	var req NoiseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid noise request")
		return
	}
	mode := domain.NoiseMedium
	if req.Mode != "" {
		m, err := domain.ParseNoiseMode(req.Mode)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		mode = m
	}
	h.run(c, "noise", func(ctx context.Context) error { return h.ctl.SetNoiseSuppression(ctx, req.Enabled, mode) })
}

func (h *handlers) policy(c *gin.Context) {
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid policy request")
		return
	}
	p, err := app.ParseMediaTypePolicy(req.Policy)
	if err != nil || req.Policy == "" {
		badRequest(c, "policy must be infer or strict")
		return
	}
	h.run(c, "policy", func(ctx context.Context) error { return h.ctl.SetPolicy(ctx, p) })
}

func (h *handlers) peerVolume(c *gin.Context) {
	var req VolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Volume == nil {
		badRequest(c, "missing or invalid volume")
		return
	}
	uid := domain.UserID(c.Param("id"))
	logCommand(c, "peer.volume")
	ctx, cancel := h.ctx(c)
	defer cancel()
	v, err := h.ctl.SetVolume(ctx, uid, *req.Volume)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": uid, "volume": v})
}

func (h *handlers) peerMute(c *gin.Context) {
	muted, ok := bindFlag(c, func(r FlagRequest) *bool { return r.Muted }, "muted")
	if !ok {
		return
	}
	uid := domain.UserID(c.Param("id"))
	h.run(c, "peer.mute", func(ctx context.Context) error { return h.ctl.SetPeerMuted(ctx, uid, muted) })
}

func (h *handlers) resumePlayback(c *gin.Context) {
	if h.gesture != nil {
		h.gesture()
	}
	h.run(c, "playback.resume", h.ctl.ResumePlayback)
}
