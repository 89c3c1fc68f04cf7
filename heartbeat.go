package centrifuge

import (
	"context"
	"time"

	"github.com/quillhq/centrifuge-go/codec"
	"github.com/quillhq/centrifuge-go/transport"
)

// watchTransportHeartbeats resets the pong-wait watchdog on every polling
// keepalive round-trip (spec.md §4.2 "heartbeat events ... drive the
// heartbeat watchdog reset"). The WebSocket adapter never sends on this
// channel, so this goroutine simply exits quietly once it closes.
func (c *Client) watchTransportHeartbeats(tr transport.Transport) {
	for range tr.Heartbeats() {
		c.resetPong()
	}
}

// startHeartbeatLocked arms the first PING timer after a successful CONNECT
// reply (spec.md §4.9). Caller holds c.mu.
func (c *Client) startHeartbeatLocked() {
	if !c.cfg.PingsEnabled {
		return
	}
	c.armPingTimerLocked()
}

func (c *Client) armPingTimerLocked() {
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	c.pingTimer = time.AfterFunc(c.cfg.PingInterval, c.sendPing)
}

// sendPing sends a PING command and arms the pong-wait timer; any inbound
// frame before it fires cancels and rearms it (spec.md §4.9).
func (c *Client) sendPing() {
	c.mu.Lock()
	if c.status != StatusConnected || !c.cfg.PingsEnabled {
		c.mu.Unlock()
		return
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
	}
	c.pongTimer = time.AfterFunc(c.cfg.PongWait, c.onPingTimeout)
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()
		if _, err := c.call(ctx, codec.MethodPing, nil); err != nil {
			c.logger.Debug().Err(err).Msg("centrifuge: ping failed")
		}
	}()
}

// onPingTimeout fires when no frame at all (reply or push) arrived within
// pongWait of the last PING (spec.md §4.9 "no ping").
func (c *Client) onPingTimeout() {
	c.forceReconnect("no ping")
}

// resetPong cancels the pong-wait timer on any inbound frame and
// reschedules the next PING, whose send arms a fresh pong-wait timer
// (spec.md §4.9 "any inbound frame ... cancels and rearms").
func (c *Client) resetPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.PingsEnabled || c.status != StatusConnected {
		return
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
	c.armPingTimerLocked()
}

// stopHeartbeat stops both heartbeat timers; safe to call whether or
// not they are armed. Despite the name this takes the lock itself — callers
// must not already hold c.mu.
func (c *Client) stopHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
}
