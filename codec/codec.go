// Package codec translates between in-memory command/reply/push records and
// wire frames. Two dialects are provided: JSON (text) and Binary
// (length-delimited). The client selects one based on the connection URL's
// format query parameter (format=protobuf selects Binary).
package codec

import "encoding/json"

// CommandMethod identifies the RPC method of an outbound command. The zero
// value is interpreted as CONNECT, the implicit first command on a new
// connection.
type CommandMethod string

// Known command methods.
const (
	MethodConnect     CommandMethod = "connect"
	MethodRefresh     CommandMethod = "refresh"
	MethodSubscribe   CommandMethod = "subscribe"
	MethodUnsubscribe CommandMethod = "unsubscribe"
	MethodPublish     CommandMethod = "publish"
	MethodPresence    CommandMethod = "presence"
	MethodHistory     CommandMethod = "history"
	MethodPing        CommandMethod = "ping"
	MethodRPC         CommandMethod = "rpc"
	MethodSend        CommandMethod = "send"
)

// IsConnect reports whether m is the zero value (implicit CONNECT) or the
// explicit connect method.
func (m CommandMethod) IsConnect() bool {
	return m == "" || m == MethodConnect
}

// PushType identifies the kind of server-initiated push.
type PushType string

// Known push types.
const (
	PushPublication PushType = "publication"
	PushJoin        PushType = "join"
	PushLeave       PushType = "leave"
	PushUnsub       PushType = "unsub"
	PushMessage     PushType = "message"
)

// Error is the wire shape of a command-reply error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IsZero reports whether the error carries no information (absent on the
// wire): code 0 and an empty message.
func (e *Error) IsZero() bool {
	return e == nil || (e.Code == 0 && e.Message == "")
}

// IsTimeout reports whether the error is the server's own "timeout" sentinel
// (code 0, message "timeout") — spec.md §4.5/§7: this escalates to a full
// reconnect rather than a normal subscribe-error.
func (e *Error) IsTimeout() bool {
	return e != nil && e.Code == 0 && e.Message == "timeout"
}

// Command is an outbound request, optionally expecting a reply.
type Command struct {
	ID     uint32          `json:"id,omitempty"`
	Method CommandMethod   `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Reply is an inbound response correlated to a Command by ID.
type Reply struct {
	ID     uint32          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Push is an inbound server-initiated notification, uncorrelated (no ID).
type Push struct {
	Type    PushType        `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// ConnectParams is the params payload of a CONNECT command.
type ConnectParams struct {
	Credentials json.RawMessage `json:"credentials,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// ConnectResult is the result payload of a CONNECT reply.
type ConnectResult struct {
	Client  string          `json:"client"`
	Expires bool            `json:"expires,omitempty"`
	Expired bool            `json:"expired,omitempty"`
	TTL     int64           `json:"ttl,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SubscribeParams is the params payload of a SUBSCRIBE command.
type SubscribeParams struct {
	Channel string          `json:"channel"`
	Client  string          `json:"client,omitempty"`
	Info    json.RawMessage `json:"info,omitempty"`
	Sign    string          `json:"sign,omitempty"`
	Recover bool            `json:"recover,omitempty"`
	Last    string          `json:"last,omitempty"`
}

// SubscribeResult is the result payload of a SUBSCRIBE reply.
type SubscribeResult struct {
	Publications []PublicationPush `json:"publications,omitempty"`
	Last         string            `json:"last,omitempty"`
	Recovered    bool              `json:"recovered,omitempty"`
}

// RefreshParams is the params payload of a REFRESH command.
type RefreshParams struct {
	Credentials json.RawMessage `json:"credentials"`
}

// RefreshResult is the result payload of a REFRESH reply.
type RefreshResult struct {
	Client  string `json:"client"`
	Expires bool   `json:"expires,omitempty"`
	Expired bool   `json:"expired,omitempty"`
	TTL     int64  `json:"ttl,omitempty"`
}

// PublicationPush is the inner data of a PUBLICATION push, and also the
// shape of entries in a SUBSCRIBE reply's recovered publications array.
type PublicationPush struct {
	UID  string          `json:"uid"`
	Data json.RawMessage `json:"data"`
	Info json.RawMessage `json:"info,omitempty"`
}

// JoinPush/LeavePush are the inner data of JOIN/LEAVE pushes. Their shape is
// server-defined; callers decode Info themselves via DecodePushData.
type JoinPush struct {
	Info json.RawMessage `json:"info"`
}

type LeavePush struct {
	Info json.RawMessage `json:"info"`
}

// Codec translates between Command/Reply/Push records and wire frames.
type Codec interface {
	// Binary reports whether this codec's frames are binary (so the
	// transport must use binary WebSocket frames) rather than text.
	Binary() bool

	// EncodeCommands serializes a non-empty ordered sequence of commands
	// into one frame.
	EncodeCommands(commands []Command) ([]byte, error)

	// DecodeFrame parses an inbound frame into its replies and pushes,
	// each in wire order.
	DecodeFrame(frame []byte) (replies []Reply, pushes []Push, err error)

	// DecodeCommandResult decodes a reply's raw Result into the typed
	// result for the given method.
	DecodeCommandResult(method CommandMethod, raw json.RawMessage) (any, error)

	// DecodePushData decodes a push's raw Data into its typed payload.
	DecodePushData(pushType PushType, raw json.RawMessage) (any, error)
}
