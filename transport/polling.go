package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/quillhq/centrifuge-go/internal/wsutil"
)

const (
	pollInterval    = 1 * time.Second
	pollHTTPTimeout = 10 * time.Second
	maxPollBody     = 1 << 20 // 1MB
)

// Polling is the HTTP long-poll fallback transport for http(s):// URLs
// (spec.md §4.2). It POSTs outbound frames to the base URL and GETs on a
// fixed interval for queued pushes/replies, grounded on the teacher's
// uplink.Client.doJSON request/response handling (bearer-free here, since
// auth is carried per spec.md by the session's credentials, not the
// transport). Every successful poll round-trip emits a heartbeat signal,
// which the session's heartbeat watchdog treats like an inbound frame.
type Polling struct {
	url       string
	binary    bool
	client    *http.Client
	sessionID string

	mu      sync.Mutex
	closed  bool
	cancel  context.CancelFunc

	msgCh   chan []byte
	hbCh    chan struct{}
	errCh   chan error
	closeCh chan CloseReason
	done    chan struct{}
}

// NewPolling constructs a Polling transport for url. If httpClient is nil a
// default client with pollHTTPTimeout is used. Each instance gets its own
// correlation ID (wsutil.NewID), sent as a header on every request so a
// server fronted by multiple pollers can associate a client's GET/POST pairs
// without relying on cookies.
func NewPolling(url string, binary bool, httpClient *http.Client) *Polling {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: pollHTTPTimeout}
	}
	return &Polling{
		url:       url,
		binary:    binary,
		client:    httpClient,
		sessionID: wsutil.NewID(),
		msgCh:     make(chan []byte, recvBufSize),
		hbCh:      make(chan struct{}, 1),
		errCh:     make(chan error, 8),
		closeCh:   make(chan CloseReason, 1),
		done:      make(chan struct{}),
	}
}

// stampRequest attaches the poller's correlation ID and request timestamp
// to an outbound HTTP request.
func (p *Polling) stampRequest(req *http.Request) {
	req.Header.Set("X-Poll-Session-Id", p.sessionID)
	req.Header.Set("X-Poll-Timestamp", wsutil.Timestamp())
}

func (p *Polling) Binary() bool { return p.binary }

func (p *Polling) Connect(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	// Probe the endpoint once so Connect fails fast on an unreachable host,
	// matching the WebSocket adapter's synchronous-dial contract.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("transport: building poll request: %w", err)
	}
	p.stampRequest(req)
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("transport: polling endpoint unreachable: %w", err)
	}
	resp.Body.Close()

	go p.pollLoop(pollCtx)
	return nil
}

func (p *Polling) Send(frame []byte) error {
	req, err := http.NewRequest(http.MethodPost, p.url, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("transport: building send request: %w", err)
	}
	if p.binary {
		req.Header.Set("Content-Type", "application/octet-stream")
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	p.stampRequest(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: sending frame: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxPollBody))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("transport: send rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (p *Polling) Messages() <-chan []byte     { return p.msgCh }
func (p *Polling) Heartbeats() <-chan struct{} { return p.hbCh }
func (p *Polling) Errors() <-chan error        { return p.errCh }
func (p *Polling) Closed() <-chan CloseReason  { return p.closeCh }

func (p *Polling) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-p.done
	select {
	case p.closeCh <- CloseReason{Reason: "disconnect", ReconnectHint: false}:
	default:
	}
	return nil
}

func (p *Polling) pollLoop(ctx context.Context) {
	defer close(p.done)
	defer close(p.msgCh)
	defer close(p.hbCh)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := p.poll(ctx)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				select {
				case p.errCh <- err:
				default:
				}
				select {
				case p.closeCh <- CloseReason{Reason: err.Error(), ReconnectHint: true}:
				default:
				}
				return
			}

			select {
			case p.hbCh <- struct{}{}:
			default:
			}

			if len(frame) > 0 {
				select {
				case p.msgCh <- frame:
				default:
					select {
					case p.errCh <- fmt.Errorf("transport: receive buffer full, dropping frame"):
					default:
					}
				}
			}
		}
	}
}

func (p *Polling) poll(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: building poll request: %w", err)
	}
	p.stampRequest(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("transport: poll rejected with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	if err != nil {
		return nil, fmt.Errorf("transport: reading poll response: %w", err)
	}
	return body, nil
}
