package codec

import (
	"encoding/json"
	"fmt"
)

// JSON is the text dialect: one JSON array per frame, one JSON object per
// command/reply/push.
type JSON struct{}

// NewJSON returns the JSON dialect codec.
func NewJSON() *JSON { return &JSON{} }

func (*JSON) Binary() bool { return false }

func (*JSON) EncodeCommands(commands []Command) ([]byte, error) {
	if len(commands) == 0 {
		return nil, fmt.Errorf("codec: EncodeCommands called with no commands")
	}
	return json.Marshal(commands)
}

// frameEnvelope is a superset of Reply and Push used to discriminate which
// one a given frame element is: replies carry "id" (always non-zero — IDs
// start at 1), pushes carry "type"/"channel" and never "id".
type frameEnvelope struct {
	ID      uint32          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Type    PushType        `json:"type,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (*JSON) DecodeFrame(frame []byte) ([]Reply, []Push, error) {
	var raw []frameEnvelope
	if err := json.Unmarshal(frame, &raw); err != nil {
		// Some servers send a single object per frame rather than an array.
		var single frameEnvelope
		if err2 := json.Unmarshal(frame, &single); err2 != nil {
			return nil, nil, fmt.Errorf("codec: decoding JSON frame: %w", err)
		}
		raw = []frameEnvelope{single}
	}

	var replies []Reply
	var pushes []Push
	for _, e := range raw {
		if e.ID != 0 {
			replies = append(replies, Reply{ID: e.ID, Result: e.Result, Error: e.Error})
			continue
		}
		pushes = append(pushes, Push{Type: e.Type, Channel: e.Channel, Data: e.Data})
	}
	return replies, pushes, nil
}

func (*JSON) DecodeCommandResult(method CommandMethod, raw json.RawMessage) (any, error) {
	return decodeCommandResult(method, raw)
}

func (*JSON) DecodePushData(pushType PushType, raw json.RawMessage) (any, error) {
	return decodePushData(pushType, raw)
}

// decodeCommandResult and decodePushData are shared by both dialects since
// the in-memory result shapes are identical; only the framing differs.
func decodeCommandResult(method CommandMethod, raw json.RawMessage) (any, error) {
	switch method {
	case MethodConnect, "":
		var r ConnectResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("codec: decoding connect result: %w", err)
		}
		return r, nil
	case MethodRefresh:
		var r RefreshResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("codec: decoding refresh result: %w", err)
		}
		return r, nil
	case MethodSubscribe:
		var r SubscribeResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("codec: decoding subscribe result: %w", err)
		}
		return r, nil
	default:
		// RPC, PUBLISH, PRESENCE, HISTORY, PING results are opaque to the
		// codec; callers decode raw themselves.
		var r json.RawMessage
		if len(raw) > 0 {
			r = raw
		}
		return r, nil
	}
}

func decodePushData(pushType PushType, raw json.RawMessage) (any, error) {
	switch pushType {
	case PushPublication:
		var p PublicationPush
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("codec: decoding publication: %w", err)
		}
		return p, nil
	case PushJoin:
		var p JoinPush
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("codec: decoding join: %w", err)
		}
		return p, nil
	case PushLeave:
		var p LeavePush
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("codec: decoding leave: %w", err)
		}
		return p, nil
	default:
		var p json.RawMessage
		if len(raw) > 0 {
			p = raw
		}
		return p, nil
	}
}
