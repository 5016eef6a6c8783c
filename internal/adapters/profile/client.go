// Package profile fetches user presentation fields from the REST API.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var ErrNotFound = errors.New("profile not found")

var _ core.ProfileProvider = (*Client)(nil)

type Client struct {
	base   string
	token  string
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(apiURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(apiURL, "/"),
		token:  token,
		http:   &http.Client{Timeout: timeout},
		logger: log.With().Str("module", "adapters.profile").Logger(),
	}
}

func (c *Client) GetProfile(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	var p domain.Profile
	endpoint := c.base + "/api/user/profile/" + url.PathEscape(id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return p, fmt.Errorf("profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return p, fmt.Errorf("profile %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return p, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return p, fmt.Errorf("profile %s: status %d: %s", id, resp.StatusCode, body)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&p); err != nil {
		return p, fmt.Errorf("decode profile %s: %w", id, err)
	}
	c.logger.Debug().Str("user_id", id.String()).Msg("profile fetched")
	return p, nil
}
