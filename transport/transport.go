// Package transport wraps the underlying message-oriented socket (a native
// WebSocket, or an HTTP long-poll fallback) behind the uniform event surface
// the session engine needs: open, message(frame), error, close(reason,
// reconnectHint). Selection between the two is driven by the connection
// URL's scheme, exactly as spec.md §4.2/§6 describes.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CloseReason describes why a transport closed. ReconnectHint is the hint the
// reconnection controller uses to decide whether to retry (spec.md §4.7).
type CloseReason struct {
	Reason        string
	ReconnectHint bool
}

// Transport is the uniform adapter surface over a native message socket or
// the HTTP polling fallback.
type Transport interface {
	// Connect dials/opens the transport and blocks until it is open or
	// ctx is done / dialing fails.
	Connect(ctx context.Context) error

	// Send writes a single outbound frame. Safe to call concurrently with
	// reads, not with other Sends (the session serializes writes itself).
	Send(frame []byte) error

	// Messages delivers inbound frames in wire order. Closed when the
	// transport's read loop exits.
	Messages() <-chan []byte

	// Heartbeats delivers a signal on every transport-level keepalive
	// round-trip. Only the polling fallback drives this (spec.md §4.2);
	// the WebSocket adapter never sends on it. Closed when the transport's
	// read loop exits.
	Heartbeats() <-chan struct{}

	// Errors delivers transport-level errors for logging. These never
	// surface to pending calls directly (spec.md §7) — only the Closed
	// channel drives reconnection.
	Errors() <-chan error

	// Closed delivers exactly one CloseReason when the transport closes,
	// whether due to a read error, a remote close frame, or Close being
	// called locally.
	Closed() <-chan CloseReason

	// Close closes the transport from the client side.
	Close() error

	// Binary reports whether this transport exchanges binary frames
	// (set by the format=protobuf URL query parameter).
	Binary() bool
}

// ErrTransportUnavailable is returned when the URL scheme doesn't map to
// either the WebSocket or Polling adapter (spec.md §4.2 "fail-fast").
var ErrTransportUnavailable = fmt.Errorf("transport unavailable")

// Options configure transport construction.
type Options struct {
	// HTTPClient overrides the *http.Client used by the Polling fallback.
	// Injected so tests and callers can substitute their own (spec.md
	// Design Notes: "inject these as constructor dependencies... so the
	// core is testable without a process-wide singleton").
	HTTPClient *http.Client
}

// New selects and constructs a Transport for rawURL:
//   - ws:// or wss:// → the native WebSocket adapter.
//   - http:// or https:// → the polling fallback.
//   - a format=protobuf query parameter selects binary framing.
//
// Any other scheme fails fast with ErrTransportUnavailable.
func New(rawURL string, opts Options) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parsing URL: %w", err)
	}

	binary := strings.EqualFold(u.Query().Get("format"), "protobuf")

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return NewWebSocket(rawURL, binary), nil
	case "http", "https":
		return NewPolling(rawURL, binary, opts.HTTPClient), nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrTransportUnavailable, u.Scheme)
	}
}
