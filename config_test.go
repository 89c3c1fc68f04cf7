package centrifuge

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	if cfg.RetryBase != time.Second {
		t.Errorf("RetryBase = %v, want 1s", cfg.RetryBase)
	}
	if cfg.RetryCap != 20*time.Second {
		t.Errorf("RetryCap = %v, want 20s", cfg.RetryCap)
	}
	if cfg.CallTimeout != 5*time.Second {
		t.Errorf("CallTimeout = %v, want 5s", cfg.CallTimeout)
	}
	if !cfg.ResubscribeOnReconnect {
		t.Error("ResubscribeOnReconnect should default true")
	}
	if !cfg.PingsEnabled {
		t.Error("PingsEnabled should default true")
	}
	if cfg.PrivateChannelPrefix != "$" {
		t.Errorf("PrivateChannelPrefix = %q, want \"$\"", cfg.PrivateChannelPrefix)
	}
	if cfg.RefreshAttempts != RefreshUnbounded {
		t.Errorf("RefreshAttempts = %d, want RefreshUnbounded", cfg.RefreshAttempts)
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []Option{
		WithRetryBackoff(2*time.Second, 30*time.Second),
		WithCallTimeout(10 * time.Second),
		WithResubscribeOnReconnect(false),
		WithPings(false, time.Minute, 2*time.Second),
		WithPrivateChannelPrefix("priv:"),
		WithRefresh("https://example.com/refresh", 3, time.Second),
		WithAuthEndpoint("https://example.com/auth"),
		WithRefreshRequest(json.RawMessage(`{"k":"v"}`), map[string]string{"X-A": "1"}, map[string]string{"q": "1"}),
		WithAuthRequest(map[string]string{"X-B": "2"}, map[string]string{"q2": "2"}),
	} {
		opt(&cfg)
	}

	if cfg.RetryBase != 2*time.Second || cfg.RetryCap != 30*time.Second {
		t.Errorf("WithRetryBackoff not applied: %+v", cfg)
	}
	if cfg.CallTimeout != 10*time.Second {
		t.Errorf("WithCallTimeout not applied: %+v", cfg)
	}
	if cfg.ResubscribeOnReconnect {
		t.Error("WithResubscribeOnReconnect(false) not applied")
	}
	if cfg.PingsEnabled || cfg.PingInterval != time.Minute || cfg.PongWait != 2*time.Second {
		t.Errorf("WithPings not applied: %+v", cfg)
	}
	if cfg.PrivateChannelPrefix != "priv:" {
		t.Errorf("WithPrivateChannelPrefix not applied: %+v", cfg)
	}
	if cfg.RefreshEndpoint != "https://example.com/refresh" || cfg.RefreshAttempts != 3 || cfg.RefreshRetryBase != time.Second {
		t.Errorf("WithRefresh not applied: %+v", cfg)
	}
	if cfg.AuthEndpoint != "https://example.com/auth" {
		t.Errorf("WithAuthEndpoint not applied: %+v", cfg)
	}
	if string(cfg.RefreshData) != `{"k":"v"}` || cfg.RefreshHeaders["X-A"] != "1" || cfg.RefreshParams["q"] != "1" {
		t.Errorf("WithRefreshRequest not applied: %+v", cfg)
	}
	if cfg.AuthHeaders["X-B"] != "2" || cfg.AuthParams["q2"] != "2" {
		t.Errorf("WithAuthRequest not applied: %+v", cfg)
	}
}

func TestRefreshFuncAndAuthFuncOptionsInstall(t *testing.T) {
	cfg := defaultConfig()
	WithRefreshFunc(func(ctx context.Context) (*RefreshCredentials, error) {
		return &RefreshCredentials{User: "u"}, nil
	})(&cfg)
	WithAuthFunc(func(ctx context.Context, clientID string, channels []string) (map[string]AuthChannelResult, error) {
		return nil, nil
	})(&cfg)

	if cfg.RefreshFunc == nil {
		t.Fatal("WithRefreshFunc not applied")
	}
	if cfg.AuthFunc == nil {
		t.Fatal("WithAuthFunc not applied")
	}
	creds, err := cfg.RefreshFunc(context.Background())
	if err != nil || creds.User != "u" {
		t.Errorf("RefreshFunc callback not wired correctly: %+v, %v", creds, err)
	}
}
