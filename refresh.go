package centrifuge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/quillhq/centrifuge-go/codec"
)

// RefreshCredentials is the refresh endpoint's (or RefreshFunc's) JSON
// response shape (spec.md §6 "HTTP side-channels").
type RefreshCredentials struct {
	User string          `json:"user"`
	Exp  int64           `json:"exp"`
	Info json.RawMessage `json:"info,omitempty"`
	Sign string          `json:"sign"`
}

// withQueryParams appends params to endpoint's query string, grounded on
// the teacher's Client.doJSON URL-building helper. Shared by the refresh
// and authorization HTTP side-channels.
func withQueryParams(endpoint string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return endpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// armRefreshLocked schedules the refresh procedure to run in ttl seconds
// (spec.md §4.8). Caller holds c.mu.
func (c *Client) armRefreshLocked(ttlSeconds int64) {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	if ttlSeconds <= 0 {
		return
	}
	c.refreshTimer = time.AfterFunc(time.Duration(ttlSeconds)*time.Second, c.runRefresh)
}

// stopRefresh cancels any armed refresh timer.
func (c *Client) stopRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

// runRefresh executes the refresh procedure: POST the refresh endpoint,
// merge the new credentials, then either send REFRESH (if connected) or
// trigger a new connect (if disconnected) (spec.md §4.8).
func (c *Client) runRefresh() {
	c.mu.Lock()
	endpoint := c.cfg.RefreshEndpoint
	headers := c.cfg.RefreshHeaders
	params := c.cfg.RefreshParams
	data := c.cfg.RefreshData
	refreshFunc := c.cfg.RefreshFunc
	httpClient := c.httpClient
	attemptsCap := c.cfg.RefreshAttempts
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if attemptsCap == 0 {
		// spec.md §4.8: "An explicit refreshAttempts = 0 disables refresh
		// entirely (immediate fail)."
		c.onRefreshFailed()
		return
	}

	var (
		resp *RefreshCredentials
		err  error
	)
	if refreshFunc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		resp, err = refreshFunc(ctx)
		cancel()
	} else {
		resp, err = c.refreshCredentials(endpoint, headers, params, data, httpClient)
	}
	if err != nil {
		c.onRefreshFailure(err)
		return
	}

	merged := mustMarshalCredentials(resp)
	c.mu.Lock()
	c.credentials = Credentials{Raw: merged}
	c.refreshFailures = 0
	c.mu.Unlock()

	if !connected {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.dial(ctx); err != nil {
			c.logger.Error().Err(err).Msg("centrifuge: reconnect after refresh failed")
		}
		return
	}

	refreshParams := codec.RefreshParams{Credentials: merged}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	res, err := c.call(ctx, codec.MethodRefresh, refreshParams)
	if err != nil {
		c.onRefreshFailure(err)
		return
	}
	result, ok := res.(codec.RefreshResult)
	if !ok {
		c.onRefreshFailure(fmt.Errorf("centrifuge: unexpected refresh result type %T", res))
		return
	}
	if result.TTL > 0 {
		c.mu.Lock()
		c.armRefreshLocked(result.TTL)
		c.mu.Unlock()
	}
}

// onRefreshFailure increments the failure counter and either rearms with
// jitter or gives up per the configured cap (spec.md §4.8).
func (c *Client) onRefreshFailure(err error) {
	c.logger.Error().Err(err).Msg("centrifuge: credential refresh failed")
	c.mu.Lock()
	c.refreshFailures++
	attemptsCap := c.cfg.RefreshAttempts
	failures := c.refreshFailures
	retryBase := c.cfg.RefreshRetryBase
	c.mu.Unlock()

	if attemptsCap > 0 && failures >= attemptsCap {
		c.onRefreshFailed()
		return
	}

	c.metrics.RefreshFailed()
	delay := retryBase + time.Duration(rand.Intn(1000))*time.Millisecond
	c.mu.Lock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	c.refreshTimer = time.AfterFunc(delay, c.runRefresh)
	c.mu.Unlock()
}

// onRefreshFailed is the terminal path: the configured attempts cap was
// reached, so the client force-disconnects with no further reconnect
// (spec.md §4.8).
func (c *Client) onRefreshFailed() {
	c.metrics.RefreshFailed()
	if c.handler.OnError != nil {
		c.handler.OnError(newCallError(KindRefreshFailed))
	}
	c.Disconnect()
}

// refreshCredentials POSTs refreshData to endpoint with refreshHeaders/
// refreshParams and decodes the response (spec.md §6 "POST JSON refreshData
// with refreshHeaders/refreshParams"), grounded on the teacher's
// Client.doJSON helper.
func (c *Client) refreshCredentials(endpoint string, headers, params map[string]string, body json.RawMessage, httpClient *http.Client) (*RefreshCredentials, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("centrifuge: no refresh endpoint configured")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	reqURL, err := withQueryParams(endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("centrifuge: building refresh URL: %w", err)
	}
	if body == nil {
		body = json.RawMessage("{}")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("centrifuge: building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("centrifuge: refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("centrifuge: refresh endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("centrifuge: reading refresh response: %w", err)
	}

	var out RefreshCredentials
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("centrifuge: decoding refresh response: %w", err)
	}
	return &out, nil
}

func mustMarshalCredentials(resp *RefreshCredentials) json.RawMessage {
	raw, _ := json.Marshal(resp)
	return raw
}
