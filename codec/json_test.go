package codec

import (
	"encoding/json"
	"testing"
)

func TestJSONEncodeCommandsEmpty(t *testing.T) {
	c := NewJSON()
	if _, err := c.EncodeCommands(nil); err == nil {
		t.Fatal("expected error encoding empty command list")
	}
}

func TestJSONRoundTripCommand(t *testing.T) {
	c := NewJSON()
	params, _ := json.Marshal(SubscribeParams{Channel: "news"})
	frame, err := c.EncodeCommands([]Command{{ID: 1, Method: MethodSubscribe, Params: params}})
	if err != nil {
		t.Fatalf("EncodeCommands: %v", err)
	}

	var decoded []Command
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if len(decoded) != 1 || decoded[0].ID != 1 || decoded[0].Method != MethodSubscribe {
		t.Fatalf("unexpected decoded commands: %+v", decoded)
	}
}

func TestJSONDecodeFrameSeparatesRepliesAndPushes(t *testing.T) {
	c := NewJSON()
	frame := []byte(`[
		{"id":1,"result":{"client":"abc"}},
		{"type":"publication","channel":"news","data":{"uid":"u1"}},
		{"id":2,"error":{"code":100,"message":"boom"}}
	]`)

	replies, pushes, err := c.DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replies))
	}
	if len(pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pushes))
	}
	if replies[0].ID != 1 || replies[0].Error != nil {
		t.Errorf("unexpected first reply: %+v", replies[0])
	}
	if replies[1].ID != 2 || replies[1].Error == nil || replies[1].Error.Code != 100 {
		t.Errorf("unexpected second reply: %+v", replies[1])
	}
	if pushes[0].Channel != "news" || pushes[0].Type != PushPublication {
		t.Errorf("unexpected push: %+v", pushes[0])
	}
}

func TestJSONDecodeFrameSingleObject(t *testing.T) {
	c := NewJSON()
	frame := []byte(`{"id":1,"result":{"client":"abc"}}`)
	replies, pushes, err := c.DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(replies) != 1 || len(pushes) != 0 {
		t.Fatalf("expected 1 reply and no pushes, got %d/%d", len(replies), len(pushes))
	}
}

func TestJSONDecodeCommandResultConnect(t *testing.T) {
	c := NewJSON()
	raw, _ := json.Marshal(ConnectResult{Client: "abc", Expires: true, TTL: 30})
	result, err := c.DecodeCommandResult(MethodConnect, raw)
	if err != nil {
		t.Fatalf("DecodeCommandResult: %v", err)
	}
	cr, ok := result.(ConnectResult)
	if !ok || cr.Client != "abc" || cr.TTL != 30 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestJSONDecodePushDataPublication(t *testing.T) {
	c := NewJSON()
	raw, _ := json.Marshal(PublicationPush{UID: "u9", Data: json.RawMessage(`{"x":1}`)})
	data, err := c.DecodePushData(PushPublication, raw)
	if err != nil {
		t.Fatalf("DecodePushData: %v", err)
	}
	pub, ok := data.(PublicationPush)
	if !ok || pub.UID != "u9" {
		t.Fatalf("unexpected push data: %+v", data)
	}
}

func TestErrorIsTimeoutAndIsZero(t *testing.T) {
	var nilErr *Error
	if !nilErr.IsZero() {
		t.Error("nil error should be zero")
	}
	zero := &Error{}
	if !zero.IsZero() {
		t.Error("empty error should be zero")
	}
	timeout := &Error{Code: 0, Message: "timeout"}
	if !timeout.IsTimeout() {
		t.Error("expected IsTimeout true")
	}
	if timeout.IsZero() {
		t.Error("timeout error should not be zero")
	}
}
