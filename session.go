// Package centrifuge implements a client-side runtime for a real-time
// pub/sub and RPC protocol over a pluggable bidirectional transport: a
// command/reply multiplexer, connection lifecycle with reconnect backoff,
// per-channel subscription state machine with recovery, optional batching,
// private-channel authorization batching, a heartbeat watchdog and a
// credential refresh loop.
//
// Its shape is grounded on the teacher's ws.Client/uplink.Uplink split: a
// single mutex-guarded struct owns all session state, with each concurrent
// event source (transport reads, timer fires, public API calls) running on
// its own goroutine but holding the mutex for the duration of any mutation.
package centrifuge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillhq/centrifuge-go/codec"
	"github.com/quillhq/centrifuge-go/metrics"
	"github.com/quillhq/centrifuge-go/transport"
)

// Status is the connection lifecycle state (spec.md §3).
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Credentials is the opaque credential record CONNECT/REFRESH carry
// (spec.md §3). Raw is sent verbatim as the wire command's "credentials"
// field; its shape is defined by the server, not this client.
type Credentials struct {
	Raw json.RawMessage
}

// Client is the Session facade (spec.md §6). Build with New and configure
// with Option values.
type Client struct {
	mu sync.Mutex

	url     string
	cfg     Config
	logger  zerolog.Logger
	metrics metrics.Collector
	handler EventHandler

	httpClient *http.Client

	codec codec.Codec
	tr    transport.Transport

	status      Status
	clientID    string
	latency     time.Duration
	credentials Credentials
	connectData json.RawMessage

	nextID  uint32
	pending map[uint32]*pendingCall

	subs     map[string]*Subscription
	lastSeen map[string]string

	batching bool
	queue    []codec.Command

	authBatching bool
	authBatch    map[string]struct{}

	backoffAttempt int
	backoffPrev    time.Duration
	reconnectTimer *time.Timer
	reconnectGen   uint64

	refreshTimer    *time.Timer
	refreshFailures int

	pingTimer *time.Timer
	pongTimer *time.Timer

	userDisconnected bool
	disconnectFired  bool

	closed bool
}

// New constructs a Client for the given URL, applying Option overrides on
// top of spec.md §3's defaults. It does not connect; call Connect.
func New(url string, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		url:      url,
		cfg:      cfg,
		logger:   zerolog.Nop(),
		metrics:  metrics.NoOp(),
		pending:  make(map[uint32]*pendingCall),
		subs:     make(map[string]*Subscription),
		lastSeen: make(map[string]string),
	}
}

// WithLogger injects a zerolog.Logger (spec.md §4.12 expansion); the
// default discards all output.
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
	return c
}

// WithMetrics injects a metrics.Collector (spec.md §4.11 expansion); the
// default is a no-op.
func (c *Client) WithMetrics(m metrics.Collector) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
	return c
}

// WithHTTPClient injects the *http.Client used for refresh and
// authorization requests and for the polling transport fallback (spec.md
// Design Note: "inject these as constructor dependencies... so the core is
// testable without a process-wide singleton"). The default is
// http.DefaultClient.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = hc
	return c
}

// OnEvent installs the session-scoped event handler (spec.md §6 "Events").
func (c *Client) OnEvent(h EventHandler) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	return c
}

// SetCredentials sets the credential record used on the next CONNECT or
// REFRESH (spec.md §6). raw is the server-defined credentials payload,
// sent verbatim.
func (c *Client) SetCredentials(raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials = Credentials{Raw: raw}
}

// SetConnectData sets the application payload sent with CONNECT (spec.md §6).
func (c *Client) SetConnectData(data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectData = data
}

// Latency returns the most recent CONNECT round-trip time (spec.md §3).
func (c *Client) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// ClientID returns the server-assigned client identifier, or "" when not
// connected (spec.md §3).
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// IsConnected reports whether the session is fully connected (spec.md §6).
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusConnected
}

// Connect opens the transport and performs the CONNECT handshake. It is
// idempotent: calling it while connecting or connected is a no-op (spec.md
// §6).
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.userDisconnected = false
	c.status = StatusConnecting
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	return c.dial(ctx)
}

// binaryHint reports whether rawURL's format=protobuf query parameter
// selects the binary codec dialect (spec.md §4.2/§6 "URL conventions").
func binaryHint(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Query().Get("format"), "protobuf")
}

// transportKind names the transport selected for rawURL's scheme, surfaced
// on ConnectedEvent (spec.md §6 "connect({client, transport, latency,
// data?})").
func transportKind(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return "websocket"
	case "http", "https":
		return "http_polling"
	default:
		return "unknown"
	}
}

// dial performs one transport-open + CONNECT handshake attempt. Called both
// from Connect and from the reconnect scheduler (backoff.go).
func (c *Client) dial(ctx context.Context) error {
	tr, err := transport.New(c.url, transport.Options{HTTPClient: c.httpClient})
	if err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		return err
	}
	if err := tr.Connect(ctx); err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		return err
	}

	var codecImpl codec.Codec = codec.NewJSON()
	if binaryHint(c.url) {
		codecImpl = codec.NewBinary()
	}

	c.mu.Lock()
	c.tr = tr
	c.codec = codecImpl
	c.mu.Unlock()

	go c.readLoop(tr)
	go c.watchClosed(tr)
	go c.watchTransportHeartbeats(tr)

	if err := c.sendConnect(ctx); err != nil {
		tr.Close()
		return err
	}
	return nil
}
