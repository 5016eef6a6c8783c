// Package roster owns the set of remote participants of the current room.
package roster

import (
	"cmp"
	"context"
	"hash/fnv"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/app"
	"github.com/dkeye/VoiceCall/internal/app/loop"
	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var avatarPalette = []string{"#5865f2", "#3ba55c", "#faa61a", "#ed4245", "#eb459e", "#9b59b6"}

type entry struct {
	peer  domain.Peer
	epoch uint64
}

// Roster is keyed by userId. peerId is a transport alias resolved through a
// lookup table that is filled opportunistically and may be incomplete.
type Roster struct {
	peers    *app.Registry[domain.UserID, entry]
	aliases  *app.Registry[domain.PeerID, domain.UserID]
	profiles core.ProfileProvider
	tasks    loop.Runner
	epoch    uint64
	logger   zerolog.Logger
}

func New(profiles core.ProfileProvider, tasks loop.Runner) *Roster {
	return &Roster{
		peers:    app.NewRegistry[domain.UserID, entry](),
		aliases:  app.NewRegistry[domain.PeerID, domain.UserID](),
		profiles: profiles,
		tasks:    tasks,
		logger:   log.With().Str("module", "app.roster").Logger(),
	}
}

// OnPeerJoined upserts the peer and starts a non-blocking profile fetch for new entries.
func (r *Roster) OnPeerJoined(ev domain.PeerJoined) domain.PeerRef {
	if ev.UserID == "" {
		r.logger.Warn().Str("peer_id", ev.PeerID.String()).Msg("peer joined without user id, using peer id as identity")
		ev.UserID = domain.UserID(ev.PeerID)
	}
	uid := ev.UserID

	if e, ok := r.peers.Get(uid); ok {
		if e.peer.PeerID != ev.PeerID && e.peer.PeerID != "" {
			r.aliases.Remove(e.peer.PeerID)
		}
		r.peers.Update(uid, func(e entry) entry {
			e.peer.PeerID = ev.PeerID
			if ev.Name != "" {
				e.peer.DisplayName = ev.Name
			}
			e.peer.IsMuted = ev.IsMuted
			e.peer.IsAudioEnabled = ev.IsAudioEnabled
			e.peer.IsGlobalAudioMuted = ev.IsGlobalAudioMuted
			e.peer.MergeProfile(domain.Profile{Avatar: ev.Avatar, AvatarColor: ev.AvatarColor})
			return e
		})
		r.alias(ev.PeerID, uid)
		r.logger.Debug().Str("user_id", uid.String()).Msg("peer refreshed")
		return domain.PeerRef{UserID: uid, Epoch: e.epoch}
	}

	r.epoch++
	ref := domain.PeerRef{UserID: uid, Epoch: r.epoch}
	r.peers.Create(uid, entry{peer: domain.NewPeer(ev), epoch: r.epoch})
	r.alias(ev.PeerID, uid)
	r.logger.Info().Str("user_id", uid.String()).Str("peer_id", ev.PeerID.String()).Str("name", ev.Name).Msg("peer added")

	r.hydrate(ref)
	return ref
}

// ApplySnapshot populates the roster from a room-join snapshot. It completes
// synchronously, so any event handled after it sees every snapshot peer.
func (r *Roster) ApplySnapshot(peers []domain.PeerJoined) []domain.PeerRef {
	refs := make([]domain.PeerRef, 0, len(peers))
	for _, p := range peers {
		refs = append(refs, r.OnPeerJoined(p))
	}
	r.logger.Info().Int("count", len(peers)).Int("roster", r.peers.Len()).Msg("snapshot applied")
	return refs
}

// OnPeerLeft removes the peer and every alias pointing at it.
// A second call for the same peer is a no-op and reports false.
func (r *Roster) OnPeerLeft(ev domain.PeerLeft) (domain.Peer, bool) {
	uid, ok := r.Find(ev.PeerID, ev.UserID)
	if !ok {
		r.logger.Debug().Str("peer_id", ev.PeerID.String()).Str("user_id", ev.UserID.String()).Msg("leave for unknown peer ignored")
		return domain.Peer{}, false
	}
	e, _ := r.peers.Remove(uid)
	for _, pid := range r.aliases.Keys() {
		if owner, _ := r.aliases.Get(pid); owner == uid {
			r.aliases.Remove(pid)
		}
	}
	r.logger.Info().Str("user_id", uid.String()).Msg("peer removed")
	return e.peer, true
}

// Find resolves an event's identity to a present roster key.
func (r *Roster) Find(pid domain.PeerID, uid domain.UserID) (domain.UserID, bool) {
	if uid != "" && r.peers.Has(uid) {
		return uid, true
	}
	if pid == "" {
		return "", false
	}
	if mapped, ok := r.aliases.Get(pid); ok && r.peers.Has(mapped) {
		return mapped, true
	}
	if r.peers.Has(domain.UserID(pid)) {
		return domain.UserID(pid), true
	}
	return "", false
}

// ResolveUserID maps a transport id to a user id, falling back to the peer id itself.
func (r *Roster) ResolveUserID(pid domain.PeerID) domain.UserID {
	if uid, ok := r.aliases.Get(pid); ok {
		return uid
	}
	r.logger.Warn().Str("peer_id", pid.String()).Msg("no user id mapping, degrading to peer id")
	return domain.UserID(pid)
}

// Alias records a peerId→userId mapping learned outside of a join event.
func (r *Roster) Alias(pid domain.PeerID, uid domain.UserID) {
	r.alias(pid, uid)
}

func (r *Roster) alias(pid domain.PeerID, uid domain.UserID) {
	if pid == "" || uid == "" || domain.UserID(pid) == uid {
		return
	}
	r.aliases.Put(pid, uid)
}

func (r *Roster) Ref(uid domain.UserID) (domain.PeerRef, bool) {
	e, ok := r.peers.Get(uid)
	if !ok {
		return domain.PeerRef{}, false
	}
	return domain.PeerRef{UserID: uid, Epoch: e.epoch}, true
}

// Valid reports whether ref still names the same presence interval.
func (r *Roster) Valid(ref domain.PeerRef) bool {
	e, ok := r.peers.Get(ref.UserID)
	return ok && e.epoch == ref.Epoch
}

func (r *Roster) Peer(uid domain.UserID) (domain.Peer, bool) {
	e, ok := r.peers.Get(uid)
	return e.peer, ok
}

func (r *Roster) Has(uid domain.UserID) bool { return r.peers.Has(uid) }

func (r *Roster) Len() int { return r.peers.Len() }

// AliasCount is the size of the peerId lookup table.
func (r *Roster) AliasCount() int { return r.aliases.Len() }

// Peers returns a copy of the roster ordered by display name.
func (r *Roster) Peers() []domain.Peer {
	out := make([]domain.Peer, 0, r.peers.Len())
	r.peers.Each(func(_ domain.UserID, e entry) {
		out = append(out, e.peer)
	})
	slices.SortStableFunc(out, func(a, b domain.Peer) int {
		return cmp.Or(cmp.Compare(a.DisplayName, b.DisplayName), cmp.Compare(a.UserID, b.UserID))
	})
	return out
}

func (r *Roster) SetMuted(uid domain.UserID, muted bool) bool {
	return r.peers.Update(uid, func(e entry) entry {
		e.peer.IsMuted = muted
		if muted {
			e.peer.IsSpeaking = false
		}
		return e
	})
}

func (r *Roster) SetAudioState(uid domain.UserID, enabled, globalMuted bool) bool {
	return r.peers.Update(uid, func(e entry) entry {
		e.peer.IsAudioEnabled = enabled
		e.peer.IsGlobalAudioMuted = globalMuted
		return e
	})
}

// SetSpeaking reports whether the flag actually changed.
func (r *Roster) SetSpeaking(uid domain.UserID, speaking bool) bool {
	changed := false
	r.peers.Update(uid, func(e entry) entry {
		changed = e.peer.IsSpeaking != speaking
		e.peer.IsSpeaking = speaking
		return e
	})
	return changed
}

// AttachStream records an inbound video or screen-audio stream on the peer.
func (r *Roster) AttachStream(uid domain.UserID, target domain.Target, id domain.TrackID, stream domain.StreamRef) bool {
	return r.peers.Update(uid, func(e entry) entry {
		switch target {
		case domain.TargetCamera:
			e.peer.IsVideoEnabled = true
			e.peer.VideoTrack, e.peer.VideoStream = id, stream
		case domain.TargetScreen:
			e.peer.IsScreenSharing = true
			e.peer.ScreenTrack, e.peer.ScreenStream = id, stream
		case domain.TargetScreenAudio:
			e.peer.ScreenAudioTrack, e.peer.ScreenAudioStream = id, stream
		}
		return e
	})
}

// DetachStream clears a stream slot. When id is set, only a slot holding that
// track is cleared, so a late close of an old track cannot hide a newer one.
func (r *Roster) DetachStream(uid domain.UserID, target domain.Target, id domain.TrackID) bool {
	changed := false
	r.peers.Update(uid, func(e entry) entry {
		switch target {
		case domain.TargetCamera:
			if id == "" || e.peer.VideoTrack == id || e.peer.VideoTrack == "" {
				changed = e.peer.IsVideoEnabled || e.peer.VideoStream != nil
				e.peer.IsVideoEnabled = false
				e.peer.VideoTrack, e.peer.VideoStream = "", nil
			}
		case domain.TargetScreen:
			if id == "" || e.peer.ScreenTrack == id || e.peer.ScreenTrack == "" {
				changed = e.peer.IsScreenSharing || e.peer.ScreenStream != nil
				e.peer.IsScreenSharing = false
				e.peer.ScreenTrack, e.peer.ScreenStream = "", nil
			}
		case domain.TargetScreenAudio:
			if id == "" || e.peer.ScreenAudioTrack == id {
				changed = e.peer.ScreenAudioStream != nil
				e.peer.ScreenAudioTrack, e.peer.ScreenAudioStream = "", nil
			}
		}
		return e
	})
	return changed
}

// Clear empties the roster and the alias table, returning the removed peers.
func (r *Roster) Clear() []domain.Peer {
	entries := r.peers.Drain()
	r.aliases.Drain()
	out := make([]domain.Peer, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.peer)
	}
	return out
}

func (r *Roster) hydrate(ref domain.PeerRef) {
	if r.profiles == nil {
		return
	}
	r.tasks.Go("profile", func(ctx context.Context) func() {
		pr, err := r.profiles.GetProfile(ctx, ref.UserID)
		return func() {
			if !r.Valid(ref) {
				r.logger.Debug().Str("user_id", ref.UserID.String()).Msg("profile for departed peer dropped")
				return
			}
			if err != nil {
				r.logger.Warn().Err(err).Str("user_id", ref.UserID.String()).Msg("profile fetch failed, using defaults")
				pr = domain.Profile{}
			}
			if pr.AvatarColor == "" {
				pr.AvatarColor = DefaultAvatarColor(ref.UserID)
			}
			r.peers.Update(ref.UserID, func(e entry) entry {
				e.peer.MergeProfile(pr)
				return e
			})
		}
	})
}

// DefaultAvatarColor picks a stable palette color for users without one.
func DefaultAvatarColor(uid domain.UserID) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(uid))
	return avatarPalette[h.Sum32()%uint32(len(avatarPalette))]
}
