package centrifuge

import (
	"context"
	"math/rand"
	"time"

	"github.com/quillhq/centrifuge-go/transport"
)

// nextBackoff computes the next decorrelated-jitter interval: min(cap,
// random_in[base, prev*3]), falling back to base when prev is zero
// (spec.md §4.7). Grounded on the teacher's backoff(attempt) helper in
// ws/client.go and uplink/client.go, generalized to take its bounds from
// Config and switched to the decorrelated form the spec requires.
func nextBackoff(base, max, prev time.Duration) time.Duration {
	upper := prev * 3
	if upper < base {
		upper = base
	}
	interval := base + time.Duration(rand.Int63n(int64(upper-base+1)))
	if interval > max {
		interval = max
	}
	return interval
}

// watchClosed waits for tr to report a close reason and drives the
// reconnection controller (spec.md §4.7). Exactly one such goroutine runs
// per live transport.
func (c *Client) watchClosed(tr transport.Transport) {
	reason, ok := <-tr.Closed()
	if !ok {
		return
	}
	c.onTransportClosed(reason)
}

func (c *Client) onTransportClosed(reason transport.CloseReason) {
	c.stopHeartbeat()

	c.mu.Lock()
	if c.tr != nil {
		c.tr = nil
	}
	c.failAllPendingLocked(KindDisconnected)
	c.demoteSubscriptionsLocked()

	wasUserDisconnected := c.userDisconnected
	alreadyFired := c.disconnectFired
	c.disconnectFired = true
	c.status = StatusDisconnected
	userDisc := wasUserDisconnected
	c.mu.Unlock()

	if !alreadyFired {
		if c.handler.OnDisconnected != nil {
			c.handler.OnDisconnected(DisconnectedEvent{
				Reason:        reason.Reason,
				WillReconnect: reason.ReconnectHint && !userDisc,
			})
		}
	}

	if userDisc || !reason.ReconnectHint {
		return
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms the next reconnect attempt using the decorrelated
// backoff sequence (spec.md §4.7). A subsequent Disconnect cancels it via
// reconnectGen.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	interval := nextBackoff(c.cfg.RetryBase, c.cfg.RetryCap, c.backoffPrev)
	c.backoffPrev = interval
	c.backoffAttempt++
	gen := c.reconnectGen
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(interval, func() { c.attemptReconnect(gen) })
	c.mu.Unlock()

	c.metrics.ReconnectAttempted()
}

func (c *Client) attemptReconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.reconnectGen || c.userDisconnected || c.closed {
		c.mu.Unlock()
		return
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.logger.Error().Err(err).Msg("centrifuge: reconnect attempt failed")
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	c.backoffAttempt = 0
	c.backoffPrev = 0
	c.disconnectFired = false
	c.mu.Unlock()
}

// forceReconnect tears down the current transport and immediately schedules
// a reconnect, used when a server-side condition (timeout sentinel reply,
// "no ping") demands it outside the normal close path.
func (c *Client) forceReconnect(reason string) {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr != nil {
		tr.Close()
		return // onTransportClosed, triggered by Closed(), takes it from here
	}
	c.onTransportClosed(transport.CloseReason{Reason: reason, ReconnectHint: true})
}

// Disconnect tears down the connection and cancels any scheduled reconnect,
// refresh and heartbeat timers (spec.md §5/§6). Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.userDisconnected = true
	c.reconnectGen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	tr := c.tr
	c.tr = nil
	c.status = StatusDisconnected
	c.failAllPendingLocked(KindDisconnected)
	c.mu.Unlock()

	c.stopHeartbeat()
	c.stopRefresh()

	if tr != nil {
		tr.Close()
	}
}

// Close permanently shuts down the client; it may not be reconnected after
// this (spec.md §6 distinguishes this from the reconnectable Disconnect by
// convention — Close additionally marks the client unusable).
func (c *Client) Close() {
	c.Disconnect()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
