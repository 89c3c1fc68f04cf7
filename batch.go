package centrifuge

import "github.com/quillhq/centrifuge-go/codec"

// StartBatching begins coalescing outbound commands into the queue instead
// of sending them immediately (spec.md §4.4).
func (c *Client) StartBatching() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batching = true
}

// StopBatching clears the batching flag and, if flush is true, sends any
// queued commands in one frame (spec.md §4.4).
func (c *Client) StopBatching(flush bool) error {
	c.mu.Lock()
	c.batching = false
	c.mu.Unlock()
	if flush {
		return c.Flush()
	}
	return nil
}

// Flush sends the queued commands as a single frame and empties the queue.
// A flush with an empty queue is a no-op (spec.md §4.4).
func (c *Client) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	if c.tr == nil {
		c.queue = nil
		return newCallError(KindDisconnected)
	}
	cmds := make([]codec.Command, len(c.queue))
	copy(cmds, c.queue)
	c.queue = c.queue[:0]
	return c.writeCommandsLocked(cmds)
}
