package protocol

import (
	"encoding/json"
	"testing"
)

func TestSignalPayloadIsOpaque(t *testing.T) {
	raw := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n","extra":[1,2,3]}`)

	msg := MustNew(TypeSignal, SignalRelay{Signal: raw, From: "a", Name: "Alice"})

	var wire Message
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var relay SignalRelay
	if err := wire.Decode(&relay); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(relay.Signal) != string(raw) {
		t.Fatalf("signal = %s, want %s", relay.Signal, raw)
	}
	if relay.From != "a" || relay.Name != "Alice" {
		t.Fatalf("relay = %+v", relay)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	msg := MustNew(TypeListRooms, nil)
	if msg.Payload != nil {
		t.Fatalf("payload = %s, want none", msg.Payload)
	}

	p := JoinPayload{Name: "keep"}
	if err := msg.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Name != "keep" {
		t.Fatalf("name = %q, want %q", p.Name, "keep")
	}
}
