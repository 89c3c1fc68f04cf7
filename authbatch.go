package centrifuge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StartAuthBatching begins collecting private-channel subscribes into the
// auth batch instead of authorizing each one individually (spec.md §4.6).
func (c *Client) StartAuthBatching() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authBatching = true
	if c.authBatch == nil {
		c.authBatch = make(map[string]struct{})
	}
}

// StopAuthBatching flushes the collected auth batch: one HTTP POST to the
// auth endpoint (or the user auth callback) authorizing every channel
// collected since StartAuthBatching, then one SUBSCRIBE per authorized
// channel (spec.md §4.6).
func (c *Client) StopAuthBatching() {
	c.mu.Lock()
	c.authBatching = false
	channels := make([]string, 0, len(c.authBatch))
	for ch := range c.authBatch {
		channels = append(channels, ch)
	}
	c.authBatch = nil
	c.mu.Unlock()

	if len(channels) == 0 {
		return
	}
	c.flushAuthBatch(channels)
}

// AuthChannelResult is one entry of the auth endpoint's (or AuthFunc's)
// per-channel response (spec.md §6 "HTTP side-channels").
type AuthChannelResult struct {
	Status int             `json:"status,omitempty"`
	Info   json.RawMessage `json:"info,omitempty"`
	Sign   string          `json:"sign,omitempty"`
}

// flushAuthBatch authorizes channels via one HTTP POST (spec.md §4.6 step
// 2), then issues SUBSCRIBE for each authorized channel, wrapping them in
// an implicit batch if command batching wasn't already active (step 4). On
// authorization failure every channel in the batch receives subscribe-error
// "authorization request failed" (spec.md §4.6 final paragraph).
func (c *Client) flushAuthBatch(channels []string) {
	c.mu.Lock()
	clientID := c.clientID
	endpoint := c.cfg.AuthEndpoint
	headers := c.cfg.AuthHeaders
	params := c.cfg.AuthParams
	authFunc := c.cfg.AuthFunc
	httpClient := c.httpClient
	alreadyBatching := c.batching
	c.mu.Unlock()

	var (
		results map[string]AuthChannelResult
		err     error
	)
	if authFunc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		results, err = authFunc(ctx, clientID, channels)
		cancel()
	} else {
		results, err = c.authorize(clientID, channels, endpoint, headers, params, httpClient)
	}
	if err != nil {
		c.logger.Error().Err(err).Strs("channels", channels).Msg("centrifuge: authorization request failed")
		for _, ch := range channels {
			if sub := c.GetSub(ch); sub != nil {
				c.subscribeError(sub, newCallError(KindAuthorizationFailed))
			}
		}
		return
	}

	if !alreadyBatching {
		c.StartBatching()
	}

	// Enqueue every authorized channel's SUBSCRIBE before flushing, so they
	// share one outbound frame (spec.md §4.6 step 4), then wait for each
	// reply independently.
	type inFlight struct {
		sub *Subscription
		pc  *pendingCall
		id  uint32
	}
	var waiting []inFlight
	for _, ch := range channels {
		sub := c.GetSub(ch)
		if sub == nil {
			continue
		}
		res, ok := results[ch]
		if !ok || (res.Status != 0 && res.Status != http.StatusOK) {
			c.subscribeError(sub, newCallError(KindAuthorizationFailed))
			continue
		}
		pc, id, err := c.enqueueSubscribe(sub, res.Info, res.Sign)
		if err != nil {
			c.subscribeError(sub, err)
			continue
		}
		waiting = append(waiting, inFlight{sub: sub, pc: pc, id: id})
	}

	if !alreadyBatching {
		if err := c.StopBatching(true); err != nil {
			c.logger.Error().Err(err).Msg("centrifuge: flushing auth batch subscribes")
		}
	}

	for _, w := range waiting {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		res, err := c.awaitPending(ctx, w.id, w.pc)
		cancel()
		c.finishSubscribe(w.sub, res, err)
	}
}

// authorize POSTs {client, channels} to endpoint with authHeaders/
// authParams and decodes the per-channel result map, grounded on the
// teacher's Client.doJSON helper (bearer-style JSON POST with a capped
// response read).
func (c *Client) authorize(clientID string, channels []string, endpoint string, headers, params map[string]string, httpClient *http.Client) (map[string]AuthChannelResult, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("centrifuge: no auth endpoint configured")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	reqURL, err := withQueryParams(endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("centrifuge: building auth URL: %w", err)
	}

	body, err := json.Marshal(map[string]any{"client": clientID, "channels": channels})
	if err != nil {
		return nil, fmt.Errorf("centrifuge: encoding auth request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("centrifuge: building auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("centrifuge: auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("centrifuge: auth endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("centrifuge: reading auth response: %w", err)
	}

	var results map[string]AuthChannelResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("centrifuge: decoding auth response: %w", err)
	}
	return results, nil
}
