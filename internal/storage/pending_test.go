package storage

import (
	"testing"
	"time"

	"chordkv/internal/logger"
	"chordkv/internal/transport"
)

func TestPendingRequestsResolve(t *testing.T) {
	p := NewPendingRequests(&logger.NopLogger{})
	waitCh := p.Register("req-1", time.Second)

	ok := p.Resolve(&transport.Envelope{RequestID: "req-1", Data: map[string]any{"value": "hello"}})
	if !ok {
		t.Fatalf("expected Resolve to find the pending request")
	}

	select {
	case env := <-waitCh:
		if env.Data["value"] != "hello" {
			t.Errorf("unexpected envelope data: %v", env.Data)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for resolved envelope")
	}
}

func TestPendingRequestsResolveUnknownID(t *testing.T) {
	p := NewPendingRequests(&logger.NopLogger{})
	if p.Resolve(&transport.Envelope{RequestID: "never-registered"}) {
		t.Errorf("expected Resolve to return false for an unknown request ID")
	}
}

func TestPendingRequestsForget(t *testing.T) {
	p := NewPendingRequests(&logger.NopLogger{})
	p.Register("req-2", time.Second)
	p.Forget("req-2")

	if p.Resolve(&transport.Envelope{RequestID: "req-2"}) {
		t.Errorf("expected Resolve to fail after Forget")
	}
}

func TestPendingRequestsSweepExpires(t *testing.T) {
	p := NewPendingRequests(&logger.NopLogger{})
	waitCh := p.Register("req-3", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	p.Sweep()

	select {
	case _, ok := <-waitCh:
		if ok {
			t.Errorf("expected channel to be closed after sweep")
		}
	default:
		t.Errorf("expected channel to be closed and readable after sweep")
	}
}
