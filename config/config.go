// Package config loads static client settings from a YAML file into
// centrifuge.Option values, for operators who want to ship a config file
// alongside the binary instead of wiring functional options in code
// (SPEC_FULL.md §6 expansion). Grounded on the teacher's internal/config
// package, adapted from project/worktree settings to centrifuge client
// settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quillhq/centrifuge-go"
)

// File is the on-disk shape of a centrifuge client config file. Every field
// is optional; zero values are left at centrifuge's own defaults.
type File struct {
	RetryBase    time.Duration `yaml:"retryBase,omitempty"`
	RetryCap     time.Duration `yaml:"retryCap,omitempty"`
	CallTimeout  time.Duration `yaml:"callTimeout,omitempty"`
	Resubscribe  *bool         `yaml:"resubscribeOnReconnect,omitempty"`
	PingsEnabled *bool         `yaml:"pingsEnabled,omitempty"`
	PingInterval time.Duration `yaml:"pingInterval,omitempty"`
	PongWait     time.Duration `yaml:"pongWait,omitempty"`
	PrivatePrefix string       `yaml:"privateChannelPrefix,omitempty"`

	RefreshEndpoint  string        `yaml:"refreshEndpoint,omitempty"`
	RefreshAttempts  int           `yaml:"refreshAttempts,omitempty"`
	RefreshRetryBase time.Duration `yaml:"refreshRetryBase,omitempty"`
	AuthEndpoint     string        `yaml:"authEndpoint,omitempty"`
}

// Load reads a File from path. A missing file is not an error — it returns
// an empty File, which translates to zero Options (all centrifuge defaults
// apply).
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &f, nil
}

// Options translates the file's fields into centrifuge.Option values, one
// per non-zero field, to pass to centrifuge.New.
func (f *File) Options() []centrifuge.Option {
	var opts []centrifuge.Option

	if f.RetryBase > 0 || f.RetryCap > 0 {
		base, cap := f.RetryBase, f.RetryCap
		if base == 0 {
			base = time.Second
		}
		if cap == 0 {
			cap = 20 * time.Second
		}
		opts = append(opts, centrifuge.WithRetryBackoff(base, cap))
	}
	if f.CallTimeout > 0 {
		opts = append(opts, centrifuge.WithCallTimeout(f.CallTimeout))
	}
	if f.Resubscribe != nil {
		opts = append(opts, centrifuge.WithResubscribeOnReconnect(*f.Resubscribe))
	}
	if f.PingsEnabled != nil || f.PingInterval > 0 || f.PongWait > 0 {
		enabled := true
		if f.PingsEnabled != nil {
			enabled = *f.PingsEnabled
		}
		interval, wait := f.PingInterval, f.PongWait
		if interval == 0 {
			interval = 30 * time.Second
		}
		if wait == 0 {
			wait = 5 * time.Second
		}
		opts = append(opts, centrifuge.WithPings(enabled, interval, wait))
	}
	if f.PrivatePrefix != "" {
		opts = append(opts, centrifuge.WithPrivateChannelPrefix(f.PrivatePrefix))
	}
	if f.RefreshEndpoint != "" {
		attempts := f.RefreshAttempts
		if attempts == 0 {
			attempts = centrifuge.RefreshUnbounded
		}
		retryBase := f.RefreshRetryBase
		if retryBase == 0 {
			retryBase = 3 * time.Second
		}
		opts = append(opts, centrifuge.WithRefresh(f.RefreshEndpoint, attempts, retryBase))
	}
	if f.AuthEndpoint != "" {
		opts = append(opts, centrifuge.WithAuthEndpoint(f.AuthEndpoint))
	}

	return opts
}
