package signal

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// envelope is the frame shape on the wire in both directions.
type envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type response struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func mustRaw(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Warn().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.logger.Info().Msg("readPump closing")
		c.Close()
		close(c.events)
	}()

	pongWait := c.cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(c.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleSignal(data)
	}
}

func (c *Client) handleSignal(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("bad json")
		return
	}

	switch env.Type {
	case "response":
		c.handleResponse(env.Data)
	case "ping":
		c.handlePing()
	default:
		ev, err := decodeEvent(env.Type, env.Data)
		if err != nil {
			c.logger.Warn().Err(err).Str("type", env.Type).Msg("event dropped")
			return
		}
		c.logger.Debug().Str("type", ev.EventType()).Msg("event")
		select {
		case c.events <- ev:
		case <-c.done:
		}
	}
}

func (c *Client) handleResponse(raw json.RawMessage) {
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ID == "" {
		c.logger.Warn().Err(err).Msg("bad response")
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug().Str("id", resp.ID).Msg("response for unknown request")
		return
	}
	ch <- resp
}

func (c *Client) sendJSON(typ, id string, v any) error {
	b, err := json.Marshal(envelope{Type: typ, ID: id, Data: mustRaw(v)})
	if err != nil {
		return err
	}
	return c.TrySend(b)
}
