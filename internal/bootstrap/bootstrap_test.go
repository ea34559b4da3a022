package bootstrap

import (
	"context"
	"testing"

	"chordkv/internal/config"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
)

func TestStaticBootstrapDiscoverReturnsConfiguredPeers(t *testing.T) {
	peers := []string{"10.0.0.1:7000", "10.0.0.2:7000"}
	b := NewStaticBootstrap(peers)

	got, err := b.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != len(peers) {
		t.Fatalf("expected %d peers, got %d", len(peers), len(got))
	}
	for i, p := range peers {
		if got[i] != p {
			t.Errorf("peer %d: got %q, want %q", i, got[i], p)
		}
	}
}

func TestStaticBootstrapRegisterDeregisterAreNoops(t *testing.T) {
	b := NewStaticBootstrap(nil)
	node := &domain.Node{Addr: "10.0.0.1:7000"}

	if err := b.Register(context.Background(), node); err != nil {
		t.Errorf("Register: expected nil error, got %v", err)
	}
	if err := b.Deregister(context.Background(), node); err != nil {
		t.Errorf("Deregister: expected nil error, got %v", err)
	}
}

func TestResolveBootstrapStaticMode(t *testing.T) {
	peers := []string{"10.0.0.1:7000"}
	got, err := ResolveBootstrap(config.BootstrapConfig{Mode: "static", Peers: peers}, &logger.NopLogger{})
	if err != nil {
		t.Fatalf("ResolveBootstrap: %v", err)
	}
	if len(got) != 1 || got[0] != peers[0] {
		t.Errorf("expected %v, got %v", peers, got)
	}
}

func TestResolveBootstrapUnsupportedMode(t *testing.T) {
	_, err := ResolveBootstrap(config.BootstrapConfig{Mode: "carrier-pigeon"}, &logger.NopLogger{})
	if err == nil {
		t.Fatalf("expected an error for an unsupported bootstrap mode")
	}
}
