package centrifuge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/quillhq/centrifuge-go/codec"
)

// SubState is a Subscription's position in the state machine (spec.md §4.5).
type SubState int32

const (
	SubNew SubState = iota
	SubSubscribing
	SubSubscribed
	SubUnsubscribed
	SubError
)

func (s SubState) String() string {
	switch s {
	case SubSubscribing:
		return "subscribing"
	case SubSubscribed:
		return "subscribed"
	case SubUnsubscribed:
		return "unsubscribed"
	case SubError:
		return "error"
	default:
		return "new"
	}
}

// Subscription is one channel's entry in the registry (spec.md §3/§4.5). It
// holds a non-owning back-reference to its Client (Design Note 9: "store a
// non-owning handle", realized here as a plain pointer since both live in
// the same process and the registry — not the Subscription — is the owner).
type Subscription struct {
	mu sync.Mutex

	client  *Client
	channel string
	state   SubState
	lastErr error

	shouldResubscribe bool
	handler           SubscriptionEventHandler
}

// Subscribe reuses an existing Subscription for channel (updating its event
// handlers) or creates a new one, then drives it toward the subscribed
// state (spec.md §6). Returns ErrInvalidChannel for an empty channel name,
// and ErrSubscribeRequiresConnection when the caller passes
// resubscribe=false while the client isn't connected.
func (c *Client) Subscribe(channel string, resubscribe bool, handler SubscriptionEventHandler) (*Subscription, error) {
	if channel == "" {
		return nil, ErrInvalidChannel
	}

	c.mu.Lock()
	connected := c.status == StatusConnected
	sub, exists := c.subs[channel]
	if !exists {
		sub = &Subscription{client: c, channel: channel}
		c.subs[channel] = sub
	}
	c.mu.Unlock()

	if !resubscribe && !connected {
		return nil, ErrSubscribeRequiresConnection
	}

	sub.mu.Lock()
	sub.handler = handler
	sub.shouldResubscribe = resubscribe
	alreadyActive := sub.state == SubSubscribing || sub.state == SubSubscribed
	sub.mu.Unlock()

	if alreadyActive {
		return sub, nil
	}

	if connected {
		c.startSubscribe(sub)
	}
	return sub, nil
}

// GetSub returns the registered Subscription for channel, or nil (spec.md
// §6).
func (c *Client) GetSub(channel string) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[channel]
}

// Channel returns the subscription's channel name.
func (s *Subscription) Channel() string { return s.channel }

// State returns the subscription's current state.
func (s *Subscription) State() SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the last-reply error recorded against this subscription, or
// nil (spec.md §3).
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Unsubscribe transitions the Subscription to unsubscribed, sending
// UNSUBSCRIBE if connected, and clears shouldResubscribe so a later
// transport loss discards it instead of resubscribing (spec.md §4.5).
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	s.shouldResubscribe = false
	s.state = SubUnsubscribed
	handler := s.handler
	s.mu.Unlock()

	c := s.client
	c.mu.Lock()
	connected := c.status == StatusConnected
	delete(c.lastSeen, s.channel)
	c.mu.Unlock()

	if connected {
		if err := c.send(codec.MethodUnsubscribe, map[string]string{"channel": s.channel}); err != nil {
			c.logger.Debug().Err(err).Str("channel", s.channel).Msg("centrifuge: unsubscribe send failed")
		}
	}
	if handler.OnUnsubscribed != nil {
		handler.OnUnsubscribed()
	}
}

// isPrivate reports whether channel requires authorization (spec.md §4.6).
func (c *Client) isPrivate(channel string) bool {
	prefix := c.cfg.PrivateChannelPrefix
	return prefix != "" && len(channel) >= len(prefix) && channel[:len(prefix)] == prefix
}

// startSubscribe classifies channel once at the entry point and dispatches
// to either the direct SUBSCRIBE path or the auth-batch path, without
// recursion (spec.md Design Note "Private-prefix self-recursion": "classify
// the channel at the entry point and dispatch ... without recursion").
func (c *Client) startSubscribe(sub *Subscription) {
	sub.mu.Lock()
	sub.state = SubSubscribing
	sub.mu.Unlock()

	if c.isPrivate(sub.channel) {
		c.mu.Lock()
		batching := c.authBatching
		if batching {
			if c.authBatch == nil {
				c.authBatch = make(map[string]struct{})
			}
			c.authBatch[sub.channel] = struct{}{}
		}
		c.mu.Unlock()
		if !batching {
			// No outstanding startAuthBatching(): treat this single channel
			// as its own one-shot batch (spec.md §4.6 flow 1-2).
			go c.flushAuthBatch([]string{sub.channel})
		}
		return
	}

	go c.sendSubscribe(sub)
}

// sendSubscribe issues a direct (non-private) SUBSCRIBE command, including
// recovery fields when a last-seen UID is known (spec.md §4.5 recovery).
func (c *Client) sendSubscribe(sub *Subscription) {
	c.sendSubscribeWithAuth(sub, nil, "")
}

// sendSubscribeWithAuth issues SUBSCRIBE carrying optional info/sign from an
// authorization response (spec.md §4.6 step 3), waiting for the reply
// itself. Used by the direct (non-batched) subscribe path.
func (c *Client) sendSubscribeWithAuth(sub *Subscription, info json.RawMessage, sign string) {
	pc, id, err := c.enqueueSubscribe(sub, info, sign)
	if err != nil {
		c.subscribeError(sub, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	res, err := c.awaitPending(ctx, id, pc)
	c.finishSubscribe(sub, res, err)
}

// enqueueSubscribe registers a SUBSCRIBE call without waiting for its
// reply, so several channels' SUBSCRIBEs can be enqueued before a single
// shared Flush (spec.md §4.6 step 4).
func (c *Client) enqueueSubscribe(sub *Subscription, info json.RawMessage, sign string) (*pendingCall, uint32, error) {
	c.mu.Lock()
	last, hasLast := c.lastSeen[sub.channel]
	clientID := c.clientID
	c.mu.Unlock()

	params := codec.SubscribeParams{
		Channel: sub.channel,
		Client:  clientID,
		Info:    info,
		Sign:    sign,
	}
	if hasLast {
		params.Recover = true
		params.Last = last
	}
	return c.enqueueCall(codec.MethodSubscribe, params)
}

// finishSubscribe dispatches a completed SUBSCRIBE call's outcome to
// subscribeSuccess/subscribeError.
func (c *Client) finishSubscribe(sub *Subscription, res any, err error) {
	if err != nil {
		c.subscribeError(sub, err)
		return
	}
	result, ok := res.(codec.SubscribeResult)
	if !ok {
		c.subscribeError(sub, fmt.Errorf("centrifuge: unexpected subscribe result type %T", res))
		return
	}
	c.subscribeSuccess(sub, result)
}

// subscribeError delivers a subscribe-error to sub and transitions it to
// SubError (spec.md §4.5 "subscribing -> error"), treating any
// error-carrying outcome uniformly whether it came from a CallError or a
// plain Go error (spec.md Design Note on _subscribeError vs.
// _subscribeResponse: "treat an error-carrying response as equivalent to
// _subscribeError").
func (c *Client) subscribeError(sub *Subscription, err error) {
	if callErr, ok := err.(*CallError); ok && callErr.Kind == KindTimeout {
		// Escalation to full reconnect already triggered by handleReply;
		// the subscription itself stays subscribing pending the reconnect.
		return
	}

	sub.mu.Lock()
	sub.state = SubError
	sub.lastErr = err
	handler := sub.handler
	sub.mu.Unlock()

	if handler.OnError != nil {
		handler.OnError(err)
	}
}

// subscribeSuccess delivers recovered publications in chronological order
// (reversing the wire's newest-first order), updates last-seen, and fires
// subscribe(recovered) (spec.md §4.5 recovery).
func (c *Client) subscribeSuccess(sub *Subscription, result codec.SubscribeResult) {
	sub.mu.Lock()
	sub.state = SubSubscribed
	handler := sub.handler
	sub.mu.Unlock()

	if len(result.Publications) > 0 {
		for i := len(result.Publications) - 1; i >= 0; i-- {
			pub := result.Publications[i]
			c.mu.Lock()
			c.lastSeen[sub.channel] = pub.UID
			c.mu.Unlock()
			if handler.OnPublication != nil {
				handler.OnPublication(pub.Data)
			}
		}
	} else if result.Last != "" {
		// Reply omitted publications but carried last: update silently,
		// no events emitted (spec.md §4.5).
		c.mu.Lock()
		c.lastSeen[sub.channel] = result.Last
		c.mu.Unlock()
	}

	c.metrics.SubscriptionStateChanged("subscribed", 1)
	if handler.OnSubscribed != nil {
		handler.OnSubscribed()
	}
}

// handlePush applies an inbound PUBLICATION/JOIN/LEAVE/UNSUB push to this
// subscription (spec.md §4.1/§4.5).
func (s *Subscription) handlePush(push codec.Push) {
	c := s.client
	c.mu.Lock()
	cd := c.codec
	c.mu.Unlock()
	if cd == nil {
		return
	}

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	switch push.Type {
	case codec.PushPublication:
		data, err := cd.DecodePushData(push.Type, push.Data)
		if err != nil {
			return
		}
		pub, ok := data.(codec.PublicationPush)
		if !ok {
			return
		}
		c.mu.Lock()
		c.lastSeen[s.channel] = pub.UID
		c.mu.Unlock()
		if handler.OnPublication != nil {
			handler.OnPublication(pub.Data)
		}
	case codec.PushJoin:
		data, err := cd.DecodePushData(push.Type, push.Data)
		if err == nil && handler.OnJoin != nil {
			if j, ok := data.(codec.JoinPush); ok {
				handler.OnJoin(j.Info)
			}
		}
	case codec.PushLeave:
		data, err := cd.DecodePushData(push.Type, push.Data)
		if err == nil && handler.OnLeave != nil {
			if l, ok := data.(codec.LeavePush); ok {
				handler.OnLeave(l.Info)
			}
		}
	case codec.PushUnsub:
		s.mu.Lock()
		s.state = SubUnsubscribed
		s.mu.Unlock()
		if handler.OnUnsubscribed != nil {
			handler.OnUnsubscribed()
		}
	}
}

// demoteSubscriptionsLocked applies the "transport lost" row of spec.md
// §4.5's state table to every registered subscription: resubscribe=true
// entries move to subscribing (and will be resent on reconnect);
// resubscribe=false entries are discarded from the registry. Caller holds
// c.mu.
func (c *Client) demoteSubscriptionsLocked() {
	for channel, sub := range c.subs {
		sub.mu.Lock()
		wasSubscribed := sub.state == SubSubscribed || sub.state == SubSubscribing
		keep := sub.shouldResubscribe
		if wasSubscribed {
			if keep {
				sub.state = SubSubscribing
			} else {
				sub.state = SubUnsubscribed
			}
		}
		handler := sub.handler
		sub.mu.Unlock()

		if wasSubscribed {
			c.metrics.SubscriptionStateChanged("subscribed", -1)
			if handler.OnUnsubscribed != nil {
				go handler.OnUnsubscribed()
			}
		}
		if !keep {
			delete(c.subs, channel)
			delete(c.lastSeen, channel)
		}
	}
}

// resubscribeAll issues SUBSCRIBE, after a successful connect or reconnect,
// for every registered subscription that is still new or was moved back to
// subscribing by a transport loss (spec.md §4.5/§4.7). Must not be
// called with c.mu held: it locks internally to snapshot the registry, then
// dispatches outside the lock since startSubscribe itself takes c.mu.
func (c *Client) resubscribeAll() {
	if !c.cfg.ResubscribeOnReconnect {
		return
	}
	c.mu.Lock()
	pending := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		pending = append(pending, sub)
	}
	c.mu.Unlock()

	for _, sub := range pending {
		sub.mu.Lock()
		needsResubscribe := sub.state == SubSubscribing || sub.state == SubNew
		sub.mu.Unlock()
		if needsResubscribe {
			c.startSubscribe(sub)
		}
	}
}
