package signal

// handlePing answers an application-level keepalive.
func (c *Client) handlePing() {
	if err := c.sendJSON("pong", "", nil); err != nil {
		c.logger.Debug().Err(err).Msg("pong dropped")
	}
}
