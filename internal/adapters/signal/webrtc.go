package signal

import (
	"context"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// PublishRequest carries a local offer for a new outgoing track.
type PublishRequest struct {
	Kind      domain.Kind      `json:"kind"`
	MediaType domain.MediaType `json:"mediaType"`
	StreamID  string           `json:"streamId"`
	SDP       string           `json:"sdp"`
}

type PublishResponse struct {
	TrackID domain.TrackID `json:"trackId"`
	SDP     string         `json:"sdp"`
}

// Offer is a server offer for receiving a remote track.
type Offer struct {
	TrackID  domain.TrackID `json:"trackId"`
	StreamID string         `json:"streamId"`
	SDP      string         `json:"sdp"`
}

func (c *Client) Publish(ctx context.Context, req PublishRequest) (PublishResponse, error) {
	var resp PublishResponse
	err := c.Request(ctx, "publish", req, &resp)
	return resp, err
}

func (c *Client) Unpublish(ctx context.Context, id domain.TrackID) error {
	return c.Request(ctx, "unpublish", map[string]domain.TrackID{"trackId": id}, nil)
}

// Subscribe asks the server to forward a track; it answers with an offer to apply.
func (c *Client) Subscribe(ctx context.Context, id domain.TrackID) (Offer, error) {
	var offer Offer
	err := c.Request(ctx, "subscribe", map[string]domain.TrackID{"trackId": id}, &offer)
	if err == nil && offer.TrackID == "" {
		offer.TrackID = id
	}
	return offer, err
}

func (c *Client) Answer(ctx context.Context, id domain.TrackID, sdp string) error {
	return c.Request(ctx, "answer", map[string]string{"trackId": string(id), "sdp": sdp}, nil)
}
