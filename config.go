package centrifuge

import (
	"context"
	"encoding/json"
	"time"
)

// RefreshUnbounded marks RefreshAttempts as having no cap: refresh retries
// indefinitely with backoff until it succeeds (spec.md §3 "refresh attempts
// cap (null = unbounded)"). This is the default.
const RefreshUnbounded = -1

// Config holds the tunables for a Client, built with functional options the
// way the teacher's ws.Client and uplink.Uplink are configured
// (ws/client.go, uplink/uplink.go), rather than a public struct literal.
type Config struct {
	// RetryBase and RetryCap bound the decorrelated-jitter reconnect backoff
	// (spec.md §4.7).
	RetryBase time.Duration
	RetryCap  time.Duration

	// CallTimeout is the per-call deadline the multiplexer enforces on every
	// pending call (spec.md §4.3).
	CallTimeout time.Duration

	// ResubscribeOnReconnect replays Subscribe for every known subscription
	// after a successful reconnect (spec.md §4.5/§4.7).
	ResubscribeOnReconnect bool

	// PingsEnabled, PingInterval and PongWait drive the heartbeat watchdog
	// (spec.md §4.9).
	PingsEnabled bool
	PingInterval time.Duration
	PongWait     time.Duration

	// PrivateChannelPrefix marks a channel as requiring authorization
	// batching before SUBSCRIBE (spec.md §4.6).
	PrivateChannelPrefix string

	// RefreshEndpoint, if set, is POSTed to for credential refresh
	// (spec.md §4.8, §6 HTTP side-channels). Ignored when RefreshFunc is set.
	RefreshEndpoint string

	// RefreshData, RefreshHeaders and RefreshParams customize the refresh
	// POST: refreshData is the request body, refreshHeaders/refreshParams
	// are added as request headers/query parameters (spec.md §3, §6 "POST
	// JSON refreshData with refreshHeaders/refreshParams").
	RefreshData    json.RawMessage
	RefreshHeaders map[string]string
	RefreshParams  map[string]string

	// RefreshFunc, if set, replaces the HTTP refresh endpoint with a
	// user-supplied callback (spec.md §3 "user-supplied overrides for
	// refresh and auth (callback form)"; §4.8 "call the user-supplied
	// onRefresh(context, cb) or POST to the refresh endpoint").
	RefreshFunc func(ctx context.Context) (*RefreshCredentials, error)

	// AuthEndpoint, if set, is POSTed to for private-channel authorization
	// batches (spec.md §4.6, §6). Ignored when AuthFunc is set.
	AuthEndpoint string

	// AuthHeaders and AuthParams customize the authorization POST
	// (spec.md §3).
	AuthHeaders map[string]string
	AuthParams  map[string]string

	// AuthFunc, if set, replaces the HTTP auth endpoint with a
	// user-supplied callback (spec.md §4.6 "or hands it to the user auth
	// callback").
	AuthFunc func(ctx context.Context, clientID string, channels []string) (map[string]AuthChannelResult, error)

	// RefreshAttempts caps consecutive refresh failures before the
	// connection is torn down terminally. RefreshUnbounded (the default)
	// retries forever; 0 disables refresh entirely (spec.md §3/§4.8).
	RefreshAttempts int

	// RefreshRetryBase is the backoff base between refresh attempts,
	// distinct from the reconnect backoff.
	RefreshRetryBase time.Duration
}

// Option mutates a Config during New, mirroring ws.Option/uplink.Option.
type Option func(*Config)

// defaultConfig holds spec.md §3's defaults.
func defaultConfig() Config {
	return Config{
		RetryBase:              1000 * time.Millisecond,
		RetryCap:               20000 * time.Millisecond,
		CallTimeout:            5000 * time.Millisecond,
		ResubscribeOnReconnect: true,
		PingsEnabled:           true,
		PingInterval:           30000 * time.Millisecond,
		PongWait:               5000 * time.Millisecond,
		PrivateChannelPrefix:   "$",
		RefreshAttempts:        RefreshUnbounded,
		RefreshRetryBase:       3000 * time.Millisecond,
	}
}

// WithRetryBackoff sets the reconnect backoff bounds (spec.md §4.7).
func WithRetryBackoff(base, max time.Duration) Option {
	return func(c *Config) {
		c.RetryBase = base
		c.RetryCap = max
	}
}

// WithCallTimeout overrides the default per-call deadline (spec.md §4.3).
func WithCallTimeout(d time.Duration) Option {
	return func(c *Config) { c.CallTimeout = d }
}

// WithResubscribeOnReconnect toggles automatic replay of subscriptions after
// reconnect (spec.md §4.5/§4.7).
func WithResubscribeOnReconnect(enabled bool) Option {
	return func(c *Config) { c.ResubscribeOnReconnect = enabled }
}

// WithPings toggles the heartbeat watchdog and sets its interval/wait
// (spec.md §4.9).
func WithPings(enabled bool, interval, pongWait time.Duration) Option {
	return func(c *Config) {
		c.PingsEnabled = enabled
		c.PingInterval = interval
		c.PongWait = pongWait
	}
}

// WithPrivateChannelPrefix overrides the "$" private-channel marker
// (spec.md §4.6).
func WithPrivateChannelPrefix(prefix string) Option {
	return func(c *Config) { c.PrivateChannelPrefix = prefix }
}

// WithRefresh configures the credential refresh HTTP endpoint, attempt cap
// and retry backoff base (spec.md §4.8).
func WithRefresh(endpoint string, attempts int, retryBase time.Duration) Option {
	return func(c *Config) {
		c.RefreshEndpoint = endpoint
		c.RefreshAttempts = attempts
		c.RefreshRetryBase = retryBase
	}
}

// WithAuthEndpoint configures the private-channel authorization HTTP
// endpoint (spec.md §4.6).
func WithAuthEndpoint(endpoint string) Option {
	return func(c *Config) { c.AuthEndpoint = endpoint }
}

// WithRefreshRequest sets the body/headers/query-params sent with the
// refresh POST (spec.md §3 "refresh headers/params/body").
func WithRefreshRequest(data json.RawMessage, headers, params map[string]string) Option {
	return func(c *Config) {
		c.RefreshData = data
		c.RefreshHeaders = headers
		c.RefreshParams = params
	}
}

// WithRefreshFunc supplies a callback that replaces the HTTP refresh
// endpoint entirely (spec.md §3/§4.8 "user-supplied onRefresh(context, cb)").
func WithRefreshFunc(fn func(ctx context.Context) (*RefreshCredentials, error)) Option {
	return func(c *Config) { c.RefreshFunc = fn }
}

// WithAuthRequest sets the headers/query-params sent with the authorization
// POST (spec.md §3 "auth headers/params").
func WithAuthRequest(headers, params map[string]string) Option {
	return func(c *Config) {
		c.AuthHeaders = headers
		c.AuthParams = params
	}
}

// WithAuthFunc supplies a callback that replaces the HTTP auth endpoint
// entirely (spec.md §4.6 "or hands it to the user auth callback").
func WithAuthFunc(fn func(ctx context.Context, clientID string, channels []string) (map[string]AuthChannelResult, error)) Option {
	return func(c *Config) { c.AuthFunc = fn }
}
