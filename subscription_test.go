package centrifuge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// subServer drives CONNECT and SUBSCRIBE, replying to subscribe with
// whatever result the test installs per channel, and recording every
// subscribe command it sees (spec.md §8 Scenario 2/3).
type subServer struct {
	mu          sync.Mutex
	subscribes  []wireCommand
	subResultFn func(channel string) json.RawMessage
}

func (s *subServer) handler() http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmds []wireCommand
			if err := json.Unmarshal(data, &cmds); err != nil {
				continue
			}
			var replies []wireReply
			for _, cmd := range cmds {
				switch cmd.Method {
				case "connect":
					replies = append(replies, wireReply{ID: cmd.ID, Result: json.RawMessage(`{"client":"c1"}`)})
				case "subscribe":
					s.mu.Lock()
					s.subscribes = append(s.subscribes, cmd)
					s.mu.Unlock()

					var params struct {
						Channel string `json:"channel"`
					}
					json.Unmarshal(cmd.Params, &params)
					result := json.RawMessage(`{}`)
					if s.subResultFn != nil {
						result = s.subResultFn(params.Channel)
					}
					replies = append(replies, wireReply{ID: cmd.ID, Result: result})
				}
			}
			if len(replies) == 0 {
				continue
			}
			out, _ := json.Marshal(replies)
			conn.WriteMessage(websocket.TextMessage, out)
		}
	}
}

func TestSubscribeDeliversRecoveredPublicationsChronologically(t *testing.T) {
	srv := &subServer{
		subResultFn: func(channel string) json.RawMessage {
			return json.RawMessage(`{
				"publications": [
					{"uid": "3", "data": {"n":3}},
					{"uid": "2", "data": {"n":2}},
					{"uid": "1", "data": {"n":1}}
				],
				"last": "3"
			}`)
		},
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	c := New(wsURL(ts) + "/connection")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	var count int

	_, err := c.Subscribe("news", true, SubscriptionEventHandler{
		OnPublication: func(data []byte) {
			mu.Lock()
			order = append(order, string(data))
			count++
			if count == 3 {
				close(done)
			}
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for recovered publications")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	if len(order) != len(want) {
		t.Fatalf("got %d publications, want %d: %v", len(order), len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("publication %d = %s, want %s (reversal must restore chronological order)", i, order[i], want[i])
		}
	}
}

func TestSubscribeLastOnlyUpdatesSilently(t *testing.T) {
	srv := &subServer{
		subResultFn: func(channel string) json.RawMessage {
			return json.RawMessage(`{"last": "42"}`)
		},
	}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	c := New(wsURL(ts) + "/connection")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	fired := false
	sub, err := c.Subscribe("news", true, SubscriptionEventHandler{
		OnPublication: func(data []byte) { fired = true },
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sub.State() != SubSubscribed && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sub.State() != SubSubscribed {
		t.Fatalf("subscription never reached subscribed state, got %v", sub.State())
	}

	c.mu.Lock()
	last := c.lastSeen["news"]
	c.mu.Unlock()
	if last != "42" {
		t.Errorf("lastSeen[news] = %q, want 42", last)
	}
	if fired {
		t.Error("OnPublication should not fire for a last-only reply")
	}
}

func TestPrivateChannelSubscribeGoesThroughAuth(t *testing.T) {
	var authCalls int
	var authMu sync.Mutex
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authMu.Lock()
		authCalls++
		authMu.Unlock()

		var req struct {
			Client   string   `json:"client"`
			Channels []string `json:"channels"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]AuthChannelResult{}
		for _, ch := range req.Channels {
			resp[ch] = AuthChannelResult{Status: 200, Sign: "sig-" + ch}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer authSrv.Close()

	srv := &subServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	c := New(wsURL(ts)+"/connection", WithAuthEndpoint(authSrv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	sub, err := c.Subscribe("$private-channel", true, SubscriptionEventHandler{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sub.State() != SubSubscribed && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sub.State() != SubSubscribed {
		t.Fatalf("private subscription never reached subscribed state, got %v", sub.State())
	}

	authMu.Lock()
	calls := authCalls
	authMu.Unlock()
	if calls != 1 {
		t.Errorf("expected exactly one auth HTTP call, got %d", calls)
	}

	srv.mu.Lock()
	n := len(srv.subscribes)
	srv.mu.Unlock()
	if n != 1 {
		t.Errorf("expected exactly one subscribe command sent, got %d", n)
	}
}
