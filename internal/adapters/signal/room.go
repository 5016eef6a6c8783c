package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dkeye/VoiceCall/internal/domain"
)

var ErrRateLimited = errors.New("too many join attempts")

// Request sends a correlated request and decodes the response data into out.
func (c *Client) Request(ctx context.Context, typ string, data, out any) error {
	id := uuid.NewString()
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.sendJSON(typ, id, data); err != nil {
		forget()
		return fmt.Errorf("%s: %w", typ, err)
	}

	select {
	case <-ctx.Done():
		forget()
		return fmt.Errorf("%s: %w", typ, ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", typ, ErrClosed)
		}
		if !resp.OK {
			return fmt.Errorf("%s: %w: %s", typ, ErrRejected, resp.Error)
		}
		if out == nil || len(resp.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("%s: %w: %v", typ, domain.ErrBadPayload, err)
		}
		return nil
	}
}

type joinSnapshot struct {
	ExistingPeers     []json.RawMessage `json:"existingPeers"`
	ExistingProducers []json.RawMessage `json:"existingProducers"`
}

// JoinRoom enters a room. Entries of the snapshot that fail validation are dropped one by one.
func (c *Client) JoinRoom(ctx context.Context, req domain.JoinRequest) (*domain.JoinSnapshot, error) {
	if !c.joins.Allow(req.UserID) {
		return nil, ErrRateLimited
	}
	var raw joinSnapshot
	if err := c.Request(ctx, "joinRoom", req, &raw); err != nil {
		return nil, err
	}

	snap := &domain.JoinSnapshot{}
	for _, p := range raw.ExistingPeers {
		ev, err := decodePeerJoined(p)
		if err != nil {
			c.logger.Warn().Err(err).Msg("snapshot peer dropped")
			continue
		}
		snap.ExistingPeers = append(snap.ExistingPeers, ev)
	}
	for _, p := range raw.ExistingProducers {
		ev, err := decodeTrackPublished(p)
		if err != nil {
			c.logger.Warn().Err(err).Msg("snapshot producer dropped")
			continue
		}
		snap.ExistingProducers = append(snap.ExistingProducers, ev)
	}
	c.logger.Info().
		Str("room", string(req.RoomID)).
		Int("peers", len(snap.ExistingPeers)).
		Int("producers", len(snap.ExistingProducers)).
		Msg("joined")
	return snap, nil
}

func (c *Client) LeaveRoom(ctx context.Context) error {
	return c.Request(ctx, "leaveRoom", nil, nil)
}
