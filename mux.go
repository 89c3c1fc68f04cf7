package centrifuge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillhq/centrifuge-go/codec"
	"github.com/quillhq/centrifuge-go/transport"
)

// pendingCall is a registered (success, failure) continuation pair keyed by
// message ID, with its own per-call timeout timer (spec.md §3/§4.3).
type pendingCall struct {
	method  codec.CommandMethod
	result  chan any
	errc    chan error
	timer   *time.Timer
	started time.Time
}

// call assigns the next monotonic ID, sends the command (batched or
// direct), registers a pending continuation and arms its timeout (spec.md
// §4.3), then waits for it to resolve. method is needed up front to decode
// the eventual reply's typed result.
func (c *Client) call(ctx context.Context, method codec.CommandMethod, params any) (any, error) {
	pc, id, err := c.enqueueCall(method, params)
	if err != nil {
		return nil, err
	}
	return c.awaitPending(ctx, id, pc)
}

// enqueueCall registers a pending continuation and places the command on
// the outbound path (batched or direct) without waiting for its reply,
// letting callers that need several in-flight commands sharing one flushed
// frame (the auth batcher, spec.md §4.6 step 4) enqueue them all before
// flushing.
func (c *Client) enqueueCall(method codec.CommandMethod, params any) (*pendingCall, uint32, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, 0, fmt.Errorf("centrifuge: encoding %s params: %w", method, err)
	}

	c.mu.Lock()
	if c.tr == nil || c.status == StatusDisconnected {
		c.mu.Unlock()
		return nil, 0, newCallError(KindDisconnected)
	}
	id := c.nextID + 1
	c.nextID = id

	pc := &pendingCall{
		method:  method,
		result:  make(chan any, 1),
		errc:    make(chan error, 1),
		started: time.Now(),
	}
	c.pending[id] = pc
	pc.timer = time.AfterFunc(c.cfg.CallTimeout, func() { c.timeoutCall(id) })

	cmd := codec.Command{ID: id, Method: method, Params: raw}
	sendErr := c.enqueueLocked(cmd)
	c.mu.Unlock()

	if sendErr != nil {
		c.failPending(id, sendErr)
		return nil, 0, sendErr
	}
	return pc, id, nil
}

// awaitPending blocks for a previously enqueued call's resolution.
func (c *Client) awaitPending(ctx context.Context, id uint32, pc *pendingCall) (any, error) {
	select {
	case res := <-pc.result:
		return res, nil
	case err := <-pc.errc:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// send transmits a fire-and-forget command with no ID and no pending entry
// (spec.md §4.3 "SEND never allocates an ID").
func (c *Client) send(method codec.CommandMethod, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("centrifuge: encoding %s params: %w", method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil || c.status == StatusDisconnected {
		return newCallError(KindDisconnected)
	}
	return c.enqueueLocked(codec.Command{Method: method, Params: raw})
}

// enqueueLocked appends cmd to the outbound queue if batching is active, or
// sends it immediately as a single-command frame. Caller holds c.mu.
func (c *Client) enqueueLocked(cmd codec.Command) error {
	if c.batching {
		c.queue = append(c.queue, cmd)
		return nil
	}
	return c.writeCommandsLocked([]codec.Command{cmd})
}

// writeCommandsLocked encodes and sends a command frame. Caller holds c.mu.
func (c *Client) writeCommandsLocked(cmds []codec.Command) error {
	frame, err := c.codec.EncodeCommands(cmds)
	if err != nil {
		return fmt.Errorf("centrifuge: encoding commands: %w", err)
	}
	if err := c.tr.Send(frame); err != nil {
		return fmt.Errorf("centrifuge: sending frame: %w", err)
	}
	return nil
}

// marshalParams encodes a typed params struct, or passes through nil.
func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}

// timeoutCall evicts a pending call on expiry and signals KindTimeout
// (spec.md §4.3).
func (c *Client) timeoutCall(id uint32) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.metrics.RPCCompleted(time.Since(pc.started), false)
	pc.errc <- newCallError(KindTimeout)
}

// failPending evicts a pending call (if still registered) and signals err.
// Used when the send path itself fails before any reply can arrive.
func (c *Client) failPending(id uint32, err error) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		if pc.timer != nil {
			pc.timer.Stop()
		}
	}
	c.mu.Unlock()
	if ok {
		pc.errc <- err
	}
}

// failAllPendingLocked fails every pending call with the given kind and
// clears the table (spec.md §4.3 "transport drops"). Caller holds c.mu.
func (c *Client) failAllPendingLocked(kind ErrorKind) {
	for id, pc := range c.pending {
		if pc.timer != nil {
			pc.timer.Stop()
		}
		delete(c.pending, id)
		pc.errc <- newCallError(kind)
	}
}

// readLoop forwards decoded replies/pushes to the dispatcher until the
// transport's Messages channel closes.
func (c *Client) readLoop(tr transport.Transport) {
	for frame := range tr.Messages() {
		c.resetPong()
		replies, pushes, err := c.decodeFrame(frame)
		if err != nil {
			c.logger.Error().Err(err).Msg("centrifuge: decoding inbound frame")
			continue
		}
		for _, r := range replies {
			c.handleReply(r)
		}
		for _, p := range pushes {
			c.handlePush(p)
		}
	}
}

func (c *Client) decodeFrame(frame []byte) ([]codec.Reply, []codec.Push, error) {
	c.mu.Lock()
	cd := c.codec
	c.mu.Unlock()
	if cd == nil {
		return nil, nil, fmt.Errorf("centrifuge: no codec selected")
	}
	return cd.DecodeFrame(frame)
}

// handleReply resolves the pending call for reply.ID, decoding its typed
// result when present (spec.md §4.3).
func (c *Client) handleReply(reply codec.Reply) {
	c.mu.Lock()
	pc, ok := c.pending[reply.ID]
	if ok {
		delete(c.pending, reply.ID)
		if pc.timer != nil {
			pc.timer.Stop()
		}
	}
	cd := c.codec
	c.mu.Unlock()
	if !ok {
		return // unknown/evicted ID: drop (spec.md §4.3)
	}

	if !reply.Error.IsZero() {
		callErr := serverCallError(reply.Error)
		c.metrics.RPCCompleted(time.Since(pc.started), false)
		if callErr.Kind == KindTimeout {
			// Server-side timeout sentinel escalates to a full reconnect
			// (spec.md §4.5/§7), independent of the call's own outcome.
			go c.forceReconnect("server timeout")
		}
		pc.errc <- callErr
		return
	}

	result, err := cd.DecodeCommandResult(pc.method, reply.Result)
	c.metrics.RPCCompleted(time.Since(pc.started), err == nil)
	if err != nil {
		pc.errc <- err
		return
	}
	pc.result <- result
}

// handlePush routes a server-initiated push to the subscription registry or
// the session-level message emitter (spec.md §4.1/§4.5).
func (c *Client) handlePush(push codec.Push) {
	c.mu.Lock()
	cd := c.codec
	c.mu.Unlock()
	if cd == nil {
		return
	}

	if push.Type == codec.PushMessage {
		data, err := cd.DecodePushData(push.Type, push.Data)
		if err != nil {
			c.logger.Error().Err(err).Msg("centrifuge: decoding message push")
			return
		}
		raw, _ := data.(json.RawMessage)
		if c.handler.OnMessage != nil {
			c.handler.OnMessage(raw)
		}
		return
	}

	c.mu.Lock()
	sub, ok := c.subs[push.Channel]
	c.mu.Unlock()
	if !ok {
		return
	}
	sub.handlePush(push)
}
