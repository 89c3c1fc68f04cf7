package centrifuge

import (
	"errors"
	"fmt"

	"github.com/quillhq/centrifuge-go/codec"
)

// ErrorKind classifies a CallError or Subscription error event (spec.md §7).
type ErrorKind string

const (
	// KindTimeout means the per-call deadline was exceeded before a reply
	// arrived (spec.md §4.3), or a server reply carried code 0, message
	// "timeout" (spec.md §7, escalates to a full reconnect in addition).
	KindTimeout ErrorKind = "timeout"

	// KindDisconnected means the transport was lost while the call was
	// still pending (spec.md §4.3/§5).
	KindDisconnected ErrorKind = "disconnected"

	// KindTransport means a transport-level error occurred. These never
	// reach a pending call directly; they drive the close handler.
	KindTransport ErrorKind = "transport"

	// KindExpired means the connection's credentials expired server-side
	// (spec.md §4.8).
	KindExpired ErrorKind = "expired"

	// KindRefreshFailed means the refresh-attempts cap was reached
	// (spec.md §4.8) — terminal, no further reconnect.
	KindRefreshFailed ErrorKind = "refresh failed"

	// KindAuthorizationFailed means the private-channel HTTP/auth callback
	// failed (spec.md §4.6).
	KindAuthorizationFailed ErrorKind = "authorization request failed"

	// KindServer means the server returned a normal {code, message} error,
	// propagated verbatim.
	KindServer ErrorKind = "server"
)

// CallError is returned by pending calls (RPC, Subscribe's implicit
// SUBSCRIBE, Ping, ...). Code is populated only for KindServer; Message holds
// the server's message for KindServer and the kind's name otherwise.
type CallError struct {
	Kind    ErrorKind
	Code    int
	Message string
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("centrifuge: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("centrifuge: %s", e.Kind)
}

// newCallError builds a CallError for a known kind with no server code.
func newCallError(kind ErrorKind) *CallError {
	msg := string(kind)
	if kind == KindTimeout {
		msg = "timeout"
	}
	return &CallError{Kind: kind, Message: msg}
}

// serverCallError builds a CallError from a wire Error, classifying the
// server-timeout sentinel (code 0, message "timeout") as KindTimeout per
// spec.md §7, and everything else as KindServer.
func serverCallError(wireErr *codec.Error) *CallError {
	if wireErr.IsTimeout() {
		return newCallError(KindTimeout)
	}
	return &CallError{Kind: KindServer, Code: wireErr.Code, Message: wireErr.Message}
}

// Sentinel errors for non-call-shaped failures.
var (
	// ErrInvalidChannel is returned by Subscribe for a missing/non-string
	// channel name (spec.md §6).
	ErrInvalidChannel = errors.New("centrifuge: invalid channel name")

	// ErrSubscribeRequiresConnection is returned by Subscribe when
	// resubscribe=false and the client is not connected (spec.md §6).
	ErrSubscribeRequiresConnection = errors.New("centrifuge: subscribe requires an active connection when resubscribe is disabled")

	// ErrClosed is returned by Connect once Close has been called.
	ErrClosed = errors.New("centrifuge: client disconnected")
)
