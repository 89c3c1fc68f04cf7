package centrifuge

import (
	"context"
	"fmt"
	"time"

	"github.com/quillhq/centrifuge-go/codec"
)

// sendConnect issues the implicit CONNECT command that opens a session
// (spec.md §4.1 "a command with method equal to the zero/default value is
// interpreted as CONNECT"), processes its result, and — on success — moves
// the client to connected, arms the heartbeat and refresh timers, and
// replays any pending subscriptions (spec.md §4.5/§4.7/§4.8/§4.9).
func (c *Client) sendConnect(ctx context.Context) error {
	c.mu.Lock()
	params := codec.ConnectParams{
		Credentials: c.credentials.Raw,
		Data:        c.connectData,
	}
	c.mu.Unlock()

	sentAt := time.Now()
	res, err := c.call(ctx, codec.MethodConnect, params)
	if err != nil {
		return fmt.Errorf("centrifuge: connect: %w", err)
	}
	result, ok := res.(codec.ConnectResult)
	if !ok {
		return fmt.Errorf("centrifuge: unexpected connect result type %T", res)
	}

	c.mu.Lock()
	c.clientID = result.Client
	c.latency = time.Since(sentAt)
	c.backoffAttempt = 0
	c.backoffPrev = 0
	c.disconnectFired = false
	if result.Expired {
		// spec.md §4.8: expired credentials mean the client immediately
		// enters reconnecting state — never StatusConnected — and runs
		// refresh before the next connect; the heartbeat must not be armed
		// on a connection that's about to be torn down.
		c.status = StatusConnecting
	} else {
		c.status = StatusConnected
		c.startHeartbeatLocked()
		if result.Expires && result.TTL > 0 {
			c.armRefreshLocked(result.TTL)
		}
	}
	latency := c.latency
	c.mu.Unlock()

	if result.Expired {
		if c.handler.OnDisconnected != nil {
			c.handler.OnDisconnected(DisconnectedEvent{Reason: "expired", WillReconnect: true})
		}
		go c.runRefresh()
		return nil
	}

	if c.handler.OnConnected != nil {
		c.handler.OnConnected(ConnectedEvent{
			ClientID:  result.Client,
			Transport: transportKind(c.url),
			Latency:   latency,
			Data:      result.Data,
		})
	}

	c.resubscribeAll()
	return nil
}
