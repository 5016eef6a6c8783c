// Package signal is the websocket client side of the call server protocol.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("signaling connection closed")
	ErrRejected     = errors.New("request rejected by server")
)

var _ core.SignalingClient = (*Client)(nil)

type Config struct {
	URL        string
	Token      string
	ReadLimit  int64
	PingPeriod time.Duration
	// JoinLimit caps joinRoom requests per JoinWindow.
	JoinLimit  int
	JoinWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 32768
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 54 * time.Second
	}
	if c.JoinLimit <= 0 {
		c.JoinLimit = 5
	}
	if c.JoinWindow <= 0 {
		c.JoinWindow = 10 * time.Second
	}
	return c
}

// Client owns one websocket connection to the call server.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger
	joins  *RateLimiter

	conn   *websocket.Conn
	send   chan []byte
	events chan domain.Event
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	pending map[string]chan response
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		logger:  log.With().Str("module", "adapters.signal").Logger(),
		joins:   NewRateLimiter(cfg.JoinLimit, cfg.JoinWindow),
		send:    make(chan []byte, 32),
		events:  make(chan domain.Event, 64),
		done:    make(chan struct{}),
		pending: make(map[string]chan response),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s: %w", c.cfg.URL, resp.Status, err)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	c.conn = ws
	c.logger.Info().Str("url", c.cfg.URL).Msg("connected")

	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Client) Events() <-chan domain.Event { return c.events }

// TrySend queues a frame without blocking.
func (c *Client) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close is idempotent. Pending requests fail with ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	close(c.send)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Info().Msg("closed")
}

func (c *Client) Send(ctx context.Context, ev domain.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.sendJSON(ev.OutboundType(), "", ev); err != nil {
		return fmt.Errorf("send %s: %w", ev.OutboundType(), err)
	}
	return nil
}
