package transport

import (
	"testing"
	"time"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &Envelope{
		Type:       TypePut,
		SenderID:   "abc123",
		SenderIP:   "10.0.0.1",
		SenderPort: 4000,
		RequestID:  "req-9",
		Timestamp:  time.Now().UTC(),
		Data:       map[string]any{"key": "k1", "value": "v1"},
	}

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	out := &Envelope{}
	if err := c.Unmarshal(data, out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if out.Type != in.Type || out.SenderID != in.SenderID || out.RequestID != in.RequestID {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if out.Data["key"] != "k1" {
		t.Errorf("expected data field to survive round trip, got %v", out.Data)
	}
}

func TestCodecName(t *testing.T) {
	if (jsonCodec{}).Name() != "proto" {
		t.Errorf("expected codec name %q to match grpc's built-in proto codec", "proto")
	}
}

func TestSenderAddr(t *testing.T) {
	env := &Envelope{SenderIP: "127.0.0.1", SenderPort: 4000}
	if got, want := env.SenderAddr(), "127.0.0.1:4000"; got != want {
		t.Errorf("SenderAddr() = %q, want %q", got, want)
	}
}
