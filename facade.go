package centrifuge

import (
	"context"
	"encoding/json"

	"github.com/quillhq/centrifuge-go/codec"
)

// RPC sends an RPC command and returns the decoded result (spec.md §6).
func (c *Client) RPC(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
	res, err := c.call(ctx, codec.MethodRPC, rpcParams{Data: data})
	if err != nil {
		return nil, err
	}
	raw, _ := res.(json.RawMessage)
	return raw, nil
}

type rpcParams struct {
	Data json.RawMessage `json:"data"`
}

// Send transmits data fire-and-forget, with no reply expected (spec.md §6).
func (c *Client) Send(data json.RawMessage) error {
	return c.send(codec.MethodSend, rpcParams{Data: data})
}

// Ping sends a PING command and returns when the reply arrives or the
// context expires (spec.md §6; Design Note resolves the "ping() return
// value" open question by giving Ping an explicit error return instead of
// mirroring the source's undefined result).
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, codec.MethodPing, nil)
	return err
}
