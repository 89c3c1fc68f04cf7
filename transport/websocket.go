package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// recvBufSize is the buffer size for the inbound message channel.
	recvBufSize = 256

	// controlWriteTimeout bounds pong/close control frame writes.
	controlWriteTimeout = 5 * time.Second
)

// WebSocket adapts github.com/gorilla/websocket to the Transport interface.
// It does not retry internally — the session's reconnection controller
// (spec.md §4.7) owns retry/backoff; WebSocket.Connect dials exactly once.
type WebSocket struct {
	url    string
	binary bool

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	sentCls bool

	msgCh   chan []byte
	hbCh    chan struct{}
	errCh   chan error
	closeCh chan CloseReason
	done    chan struct{}
}

// NewWebSocket constructs a WebSocket transport for url. binary selects
// whether outbound frames use BinaryMessage instead of TextMessage.
func NewWebSocket(url string, binary bool) *WebSocket {
	return &WebSocket{
		url:     url,
		binary:  binary,
		msgCh:   make(chan []byte, recvBufSize),
		hbCh:    make(chan struct{}),
		errCh:   make(chan error, 8),
		closeCh: make(chan CloseReason, 1),
		done:    make(chan struct{}),
	}
}

func (w *WebSocket) Binary() bool { return w.binary }

// Connect dials the server once. On success it installs ping/pong handlers
// mirroring the teacher's ws.Client (respond to server pings automatically,
// track pongs) and starts the read loop.
func (w *WebSocket) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("transport: dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("transport: dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	conn.SetPongHandler(func(string) error { return nil })
	conn.SetPingHandler(func(appData string) error {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.conn == nil {
			return nil
		}
		return w.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteTimeout))
	})

	go w.readLoop(conn)
	return nil
}

func (w *WebSocket) Send(frame []byte) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}

	mt := websocket.TextMessage
	if w.binary {
		mt = websocket.BinaryMessage
	}
	return conn.WriteMessage(mt, frame)
}

func (w *WebSocket) Messages() <-chan []byte        { return w.msgCh }
func (w *WebSocket) Heartbeats() <-chan struct{}    { return w.hbCh }
func (w *WebSocket) Errors() <-chan error           { return w.errCh }
func (w *WebSocket) Closed() <-chan CloseReason     { return w.closeCh }

// Close closes the connection from the client side: a normal close frame,
// reason "disconnect" so the reconnection controller does not reconnect
// (spec.md §4.7 treats close.reason == "disconnect" as no-reconnect).
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	var err error
	if conn != nil {
		deadline := time.Now().Add(controlWriteTimeout)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
		err = conn.Close()
	}

	select {
	case <-w.done:
	case <-time.After(controlWriteTimeout):
	}
	w.emitClose(CloseReason{Reason: "disconnect", ReconnectHint: false})
	return err
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	defer close(w.done)
	defer close(w.msgCh)
	defer close(w.hbCh)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}

			select {
			case w.errCh <- err:
			default:
			}
			w.emitClose(parseCloseError(err))
			return
		}

		select {
		case w.msgCh <- data:
		default:
			// Backpressure: drop rather than block the read loop forever.
			select {
			case w.errCh <- fmt.Errorf("transport: receive buffer full, dropping frame"):
			default:
			}
		}
	}
}

func (w *WebSocket) emitClose(reason CloseReason) {
	select {
	case w.closeCh <- reason:
	default:
	}
}

// parseCloseError classifies a ReadMessage error into a CloseReason. Per
// spec.md §4.7, the close reason carried in the frame may be (a) a JSON
// object {reason, reconnect} — parsed and used directly — or (b) a plain
// string, with reconnect = reason != "disconnect". Grounded on the
// disconnect{Reason, Reconnect} struct the pack's centrifuge-go client
// parses out of its close frame payload.
func parseCloseError(err error) CloseReason {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Text != "" {
		var parsed struct {
			Reason    string `json:"reason"`
			Reconnect bool   `json:"reconnect"`
		}
		if json.Unmarshal([]byte(closeErr.Text), &parsed) == nil && parsed.Reason != "" {
			return CloseReason{Reason: parsed.Reason, ReconnectHint: parsed.Reconnect}
		}
		return CloseReason{Reason: closeErr.Text, ReconnectHint: closeErr.Text != "disconnect"}
	}
	return CloseReason{Reason: err.Error(), ReconnectHint: true}
}
