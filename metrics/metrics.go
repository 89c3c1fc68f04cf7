// Package metrics instruments the session with Prometheus collectors,
// grounded on the prometheus/client_golang usage shared by the
// adred-codev-ws_poc server variants in the reference pack. The Session
// talks to a small Collector interface rather than a package-global
// registry, the same injected-dependency shape the spec already uses for
// onRefresh/transport-close callbacks.
package metrics

import "time"

// Collector receives session lifecycle signals. A nil Collector is never
// passed to callers — use NoOp() as the default.
type Collector interface {
	ReconnectAttempted()
	RPCCompleted(d time.Duration, ok bool)
	SubscriptionStateChanged(state string, delta int)
	RefreshFailed()
}

// noop discards everything; it is the Session's default Collector so
// instrumentation is always optional.
type noop struct{}

// NoOp returns a Collector that discards all signals.
func NoOp() Collector { return noop{} }

func (noop) ReconnectAttempted()                       {}
func (noop) RPCCompleted(time.Duration, bool)          {}
func (noop) SubscriptionStateChanged(string, int)      {}
func (noop) RefreshFailed()                            {}
