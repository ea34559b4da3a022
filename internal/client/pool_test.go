package client

import (
	"testing"
	"time"

	"chordkv/internal/logger"
)

func TestGetFromPoolCachesConnection(t *testing.T) {
	p := New(&logger.NopLogger{}, time.Minute)
	defer p.CloseAll()

	ch1, err := p.GetFromPool("127.0.0.1:1")
	if err != nil {
		t.Fatalf("GetFromPool: %v", err)
	}
	p.Release("127.0.0.1:1")

	ch2, err := p.GetFromPool("127.0.0.1:1")
	if err != nil {
		t.Fatalf("GetFromPool: %v", err)
	}
	p.Release("127.0.0.1:1")

	if ch1 == nil || ch2 == nil {
		t.Fatalf("expected non-nil channels")
	}

	p.mu.RLock()
	n := len(p.conns)
	p.mu.RUnlock()
	if n != 1 {
		t.Errorf("expected a single cached entry for one address, got %d", n)
	}
}

func TestReleaseDropsRefCount(t *testing.T) {
	p := New(&logger.NopLogger{}, time.Minute)
	defer p.CloseAll()

	if _, err := p.GetFromPool("127.0.0.1:2"); err != nil {
		t.Fatalf("GetFromPool: %v", err)
	}

	p.mu.RLock()
	entry := p.conns["127.0.0.1:2"]
	p.mu.RUnlock()

	entry.mu.Lock()
	refs := entry.refs
	entry.mu.Unlock()
	if refs != 1 {
		t.Fatalf("expected 1 ref after a single GetFromPool, got %d", refs)
	}

	p.Release("127.0.0.1:2")

	entry.mu.Lock()
	refs = entry.refs
	lastUsed := entry.lastUsed
	entry.mu.Unlock()
	if refs != 0 {
		t.Errorf("expected 0 refs after Release, got %d", refs)
	}
	if lastUsed.IsZero() {
		t.Errorf("expected lastUsed to be stamped once refs drop to zero")
	}
}

func TestEvictIdleRemovesExpiredConnections(t *testing.T) {
	p := New(&logger.NopLogger{}, time.Millisecond)
	defer p.CloseAll()

	if _, err := p.GetFromPool("127.0.0.1:3"); err != nil {
		t.Fatalf("GetFromPool: %v", err)
	}
	p.Release("127.0.0.1:3")

	time.Sleep(5 * time.Millisecond)
	p.evictIdle()

	p.mu.RLock()
	n := len(p.conns)
	p.mu.RUnlock()
	if n != 0 {
		t.Errorf("expected idle connection to be evicted, got %d remaining", n)
	}
}

func TestEvictIdleKeepsReferencedConnections(t *testing.T) {
	p := New(&logger.NopLogger{}, time.Millisecond)
	defer p.CloseAll()

	if _, err := p.GetFromPool("127.0.0.1:4"); err != nil {
		t.Fatalf("GetFromPool: %v", err)
	}
	// Intentionally not released: refs stay at 1.

	time.Sleep(5 * time.Millisecond)
	p.evictIdle()

	p.mu.RLock()
	n := len(p.conns)
	p.mu.RUnlock()
	if n != 1 {
		t.Errorf("expected referenced connection to survive eviction, got %d remaining", n)
	}
}
