package centrifuge

import "time"

// EventHandler groups the optional callbacks a Client can be given, mirroring
// the teacher's callback-options shape (ws.Option's onRecon,
// uplink.Option's onAuthFailure) rather than a channel-based event bus —
// handlers run synchronously on whichever goroutine detected the event, and
// must not block.
type EventHandler struct {
	// OnConnected fires once the CONNECT handshake completes.
	OnConnected func(ConnectedEvent)

	// OnDisconnected fires when the transport is lost or closed, before any
	// reconnect attempt is scheduled.
	OnDisconnected func(DisconnectedEvent)

	// OnError fires for errors that are not tied to a specific pending call
	// or subscription. The only such error raised is the terminal refresh
	// failure (KindRefreshFailed); transport-level errors are not reported
	// here.
	OnError func(error)

	// OnMessage fires for server-to-client pushes of type "message"
	// (spec.md §4.1) that are not publications/joins/leaves.
	OnMessage func(data []byte)
}

// ConnectedEvent carries the CONNECT result payload (spec.md §6
// "connect({client, transport, latency, data?})").
type ConnectedEvent struct {
	ClientID  string
	Transport string
	Latency   time.Duration
	Data      []byte
}

// DisconnectedEvent carries the transport close reason and whether the
// client will attempt to reconnect.
type DisconnectedEvent struct {
	Reason        string
	WillReconnect bool
}

// SubscriptionEventHandler groups the optional per-subscription callbacks,
// mirroring EventHandler's shape but scoped to one channel.
type SubscriptionEventHandler struct {
	OnSubscribed   func()
	OnUnsubscribed func()
	OnPublication  func(data []byte)
	OnJoin         func(info []byte)
	OnLeave        func(info []byte)
	OnError        func(error)
}
