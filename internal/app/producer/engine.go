// Package producer reconciles track published/closed events against the roster
// and the audio pipeline.
package producer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

// Roster is the part of the peer roster the engine reads and annotates.
type Roster interface {
	Find(pid domain.PeerID, uid domain.UserID) (domain.UserID, bool)
	Ref(uid domain.UserID) (domain.PeerRef, bool)
	Valid(ref domain.PeerRef) bool
	Peer(uid domain.UserID) (domain.Peer, bool)
	Alias(pid domain.PeerID, uid domain.UserID)
	AttachStream(uid domain.UserID, target domain.Target, id domain.TrackID, stream domain.StreamRef) bool
	DetachStream(uid domain.UserID, target domain.Target, id domain.TrackID) bool
}

// Pipeline renders microphone tracks.
type Pipeline interface {
	Attach(ref domain.PeerRef, id domain.TrackID, stream core.MediaStream) error
	DetachTrack(uid domain.UserID, id domain.TrackID) bool
}

type Engine struct {
	roster    Roster
	pipeline  Pipeline
	transport core.Transport
	tasks     loop.Runner
	policy    app.MediaTypePolicy

	tracks *app.Registry[domain.TrackID, domain.Track]
	closed *app.Registry[domain.TrackID, struct{}]
	// superseded maps replaced microphone tracks to their owner. The chain may
	// still render one of them until its own close arrives.
	superseded *app.Registry[domain.TrackID, domain.UserID]

	logger zerolog.Logger
}

func New(r Roster, p Pipeline, transport core.Transport, tasks loop.Runner, policy app.MediaTypePolicy) *Engine {
	return &Engine{
		roster:     r,
		pipeline:   p,
		transport:  transport,
		tasks:      tasks,
		policy:     policy,
		tracks:     app.NewRegistry[domain.TrackID, domain.Track](),
		closed:     app.NewRegistry[domain.TrackID, struct{}](),
		superseded: app.NewRegistry[domain.TrackID, domain.UserID](),
		logger:     log.With().Str("module", "app.producer").Logger(),
	}
}

func (e *Engine) SetPolicy(p app.MediaTypePolicy) { e.policy = p }

func (e *Engine) Policy() app.MediaTypePolicy { return e.policy }

// OnTrackPublished registers the track and subscribes to it off-loop. The
// subscription result is dropped if the track closed or its owner left meanwhile.
func (e *Engine) OnTrackPublished(ev domain.TrackPublished) {
	lg := e.logger.With().Str("track_id", ev.TrackID.String()).Str("peer_id", ev.OwnerPeerID.String()).Logger()
	if e.closed.Has(ev.TrackID) {
		lg.Debug().Msg("publish for closed track ignored")
		return
	}
	if e.tracks.Has(ev.TrackID) {
		lg.Debug().Msg("duplicate publish ignored")
		return
	}
	if ev.OwnerUserID != "" {
		e.roster.Alias(ev.OwnerPeerID, ev.OwnerUserID)
	}
	uid, ok := e.roster.Find(ev.OwnerPeerID, ev.OwnerUserID)
	if !ok {
		lg.Warn().Err(domain.ErrUnknownPeer).Msg("track owner not in roster")
		return
	}
	target, err := e.classifyPublished(uid, ev.Kind, ev.MediaType)
	if err != nil {
		lg.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("track not routable")
		return
	}

	t := domain.Track{
		ID:        ev.TrackID,
		Kind:      ev.Kind,
		MediaType: ev.MediaType,
		Owner:     ev.OwnerPeerID,
		OwnerUser: uid,
		Target:    target,
	}
	e.supersede(uid, target)
	e.tracks.Put(t.ID, t)
	lg.Info().Str("user_id", uid.String()).Stringer("target", target).Msg("track opened")

	ref, _ := e.roster.Ref(uid)
	e.tasks.Go("subscribe", func(ctx context.Context) func() {
		stream, err := e.transport.SubscribeTrack(ctx, t.ID)
		return func() { e.onSubscribed(ref, t, stream, err) }
	})
}

// supersede closes any other open track of uid routed to the same target,
// keeping at most one open track per target and peer.
func (e *Engine) supersede(uid domain.UserID, target domain.Target) {
	for _, id := range e.tracks.Keys() {
		t, _ := e.tracks.Get(id)
		if t.OwnerUser != uid || t.Target != target {
			continue
		}
		e.tracks.Remove(id)
		e.closed.Put(id, struct{}{})
		if target == domain.TargetMicrophone {
			e.superseded.Put(id, uid)
		}
		e.logger.Debug().Str("track_id", id.String()).Str("user_id", uid.String()).Msg("track superseded")
	}
}

func (e *Engine) onSubscribed(ref domain.PeerRef, t domain.Track, stream core.MediaStream, err error) {
	lg := e.logger.With().Str("track_id", t.ID.String()).Str("user_id", ref.UserID.String()).Logger()
	cur, open := e.tracks.Get(t.ID)
	if !open || cur.Lifecycle == domain.LifecycleClosed || !e.roster.Valid(ref) {
		lg.Debug().Err(domain.ErrStaleReference).Msg("subscription result dropped")
		if err == nil && stream != nil {
			stream.Stop()
		}
		return
	}
	if err != nil {
		lg.Warn().Err(err).Msg("subscribe failed")
		e.tracks.Remove(t.ID)
		return
	}

	switch t.Target {
	case domain.TargetMicrophone:
		if err := e.pipeline.Attach(ref, t.ID, stream); err != nil {
			lg.Warn().Err(err).Msg("audio chain not built")
		}
	default:
		e.roster.AttachStream(ref.UserID, t.Target, t.ID, stream)
		lg.Info().Stringer("target", t.Target).Msg("stream attached to peer")
	}
}

// OnTrackClosed moves the track to its terminal state. A repeated close is
// absorbed by the dedup set. Only a close unambiguously routed to the
// microphone can reach the peer's audio chain.
func (e *Engine) OnTrackClosed(ev domain.TrackClosed) {
	lg := e.logger.With().Str("track_id", ev.TrackID.String()).Str("peer_id", ev.OwnerPeerID.String()).Logger()
	if e.closed.Has(ev.TrackID) {
		if uid, ok := e.superseded.Remove(ev.TrackID); ok && e.pipeline.DetachTrack(uid, ev.TrackID) {
			lg.Info().Str("user_id", uid.String()).Msg("superseded microphone closed, chain torn down")
			return
		}
		lg.Debug().Msg("duplicate close absorbed")
		return
	}
	e.closed.Put(ev.TrackID, struct{}{})

	t, known := e.tracks.Remove(ev.TrackID)
	if !known {
		uid, ok := e.roster.Find(ev.OwnerPeerID, "")
		if !ok {
			lg.Debug().Msg("close for unknown track and owner")
			return
		}
		t = domain.Track{ID: ev.TrackID, Kind: ev.Kind, MediaType: ev.MediaType, Owner: ev.OwnerPeerID, OwnerUser: uid}
		t.Target = e.classifyClosed(uid, ev.Kind, ev.MediaType)
	}
	t.Close()

	switch t.Target {
	case domain.TargetMicrophone:
		if e.pipeline.DetachTrack(t.OwnerUser, t.ID) {
			lg.Info().Str("user_id", t.OwnerUser.String()).Msg("microphone closed, chain torn down")
		}
	case domain.TargetCamera, domain.TargetScreen, domain.TargetScreenAudio:
		e.roster.DetachStream(t.OwnerUser, t.Target, t.ID)
		lg.Info().Str("user_id", t.OwnerUser.String()).Stringer("target", t.Target).Msg("stream closed")
	default:
		lg.Debug().Msg("close not routable, chain left alone")
	}
}

// ApplyExisting processes the producers of a join snapshot in order.
func (e *Engine) ApplyExisting(producers []domain.TrackPublished) {
	for _, ev := range producers {
		e.OnTrackPublished(ev)
	}
}

// ForgetOwner drops the open tracks of a departed user. Their ids stay in the
// dedup set so late events for them stay inert.
func (e *Engine) ForgetOwner(uid domain.UserID) int {
	n := 0
	for _, id := range e.tracks.Keys() {
		if t, _ := e.tracks.Get(id); t.OwnerUser == uid {
			e.tracks.Remove(id)
			e.closed.Put(id, struct{}{})
			n++
		}
	}
	for _, id := range e.superseded.Keys() {
		if owner, _ := e.superseded.Get(id); owner == uid {
			e.superseded.Remove(id)
		}
	}
	return n
}

// Reset clears every track and the dedup set. Used when leaving a room.
func (e *Engine) Reset() {
	e.tracks.Drain()
	e.closed.Drain()
	e.superseded.Drain()
}

func (e *Engine) Track(id domain.TrackID) (domain.Track, bool) { return e.tracks.Get(id) }

func (e *Engine) OpenCount() int { return e.tracks.Len() }

func (e *Engine) IsClosed(id domain.TrackID) bool { return e.closed.Has(id) }

func (e *Engine) classifyPublished(uid domain.UserID, kind domain.Kind, mt domain.MediaType) (domain.Target, error) {
	target, err := domain.Classify(kind, mt)
	if !errors.Is(err, domain.ErrClassificationAmbiguous) || e.policy == app.RejectUntagged {
		return target, err
	}
	p, _ := e.roster.Peer(uid)
	switch kind {
	case domain.KindVideo:
		target = domain.TargetCamera
		if p.IsVideoEnabled || e.hasOpen(uid, domain.TargetCamera) {
			target = domain.TargetScreen
		}
	case domain.KindAudio:
		target = domain.TargetMicrophone
		if p.IsScreenSharing && e.hasOpen(uid, domain.TargetMicrophone) {
			target = domain.TargetScreenAudio
		}
	default:
		return domain.TargetNone, err
	}
	e.logger.Warn().Err(err).Str("user_id", uid.String()).Stringer("inferred", target).Msg("untagged track, inferred from peer state")
	return target, nil
}

// classifyClosed never infers the microphone for an untagged close.
func (e *Engine) classifyClosed(uid domain.UserID, kind domain.Kind, mt domain.MediaType) domain.Target {
	target, err := domain.Classify(kind, mt)
	if err == nil {
		return target
	}
	if !errors.Is(err, domain.ErrClassificationAmbiguous) || e.policy == app.RejectUntagged || kind != domain.KindVideo {
		return domain.TargetNone
	}
	p, _ := e.roster.Peer(uid)
	switch {
	case p.IsVideoEnabled:
		target = domain.TargetCamera
	case p.IsScreenSharing:
		target = domain.TargetScreen
	default:
		return domain.TargetNone
	}
	e.logger.Warn().Err(err).Str("user_id", uid.String()).Stringer("inferred", target).Msg("untagged close, inferred from peer state")
	return target
}

func (e *Engine) hasOpen(uid domain.UserID, target domain.Target) bool {
	found := false
	e.tracks.Each(func(_ domain.TrackID, t domain.Track) {
		found = found || (t.OwnerUser == uid && t.Target == target)
	})
	return found
}
