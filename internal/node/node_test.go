package node

import (
	"context"
	"testing"
	"time"

	"chordkv/internal/client"
	"chordkv/internal/config"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"chordkv/internal/routingtable"
	"chordkv/internal/storage"
)

func newTestNode(t *testing.T) (*Node, domain.Space) {
	t.Helper()
	sp, err := domain.NewSpace(8, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	self := &domain.Node{ID: sp.FromUint64(10), Addr: "self:1"}
	rt := routingtable.New(self, sp, 3)
	store := storage.NewMemoryStorage(&logger.NopLogger{})
	cp := client.New(&logger.NopLogger{}, time.Second)

	n := New(rt, store, cp, config.StorageConfig{
		ReplicationFactor: 1,
		RequestTimeout:    time.Second,
	}, config.FaultToleranceConfig{
		MaxMissedHeartbeats: 3,
	})
	n.CreateRing()
	return n, sp
}

func TestCreateRingIsSingleMemberLoop(t *testing.T) {
	n, _ := newTestNode(t)
	if !n.RoutingTable().IsJoined() {
		t.Fatalf("expected ring to be joined after CreateRing")
	}
	if succ := n.RoutingTable().FirstSuccessor(); !succ.Equal(n.Self()) {
		t.Errorf("expected successor to be self, got %v", succ)
	}
}

func TestFindSuccessorResolvesLocallyOnSingleNodeRing(t *testing.T) {
	n, sp := newTestNode(t)
	target := sp.FromUint64(50)

	owner, err := n.FindSuccessor(context.Background(), target)
	if err != nil {
		t.Fatalf("FindSuccessor: %v", err)
	}
	if !owner.Equal(n.Self()) {
		t.Errorf("expected lone node to own every key, got %v", owner)
	}
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	n, sp := newTestNode(t)
	id := sp.FromUint64(20)

	if err := n.Put(context.Background(), id, "k", "v1"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := n.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "v1" {
		t.Errorf("expected value v1, got %q", got.Value)
	}

	if err := n.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := n.Get(context.Background(), id); err != domain.ErrResourceNotFound {
		t.Errorf("expected ErrResourceNotFound after delete, got %v", err)
	}
}

func TestNotifyAdoptsCloserPredecessor(t *testing.T) {
	n, sp := newTestNode(t)

	candidate := &domain.Node{ID: sp.FromUint64(3), Addr: "cand:1"}
	n.Notify(candidate)

	if pred := n.RoutingTable().GetPredecessor(); !pred.Equal(candidate) {
		t.Errorf("expected predecessor to become %v, got %v", candidate, pred)
	}
}

func TestNotifyIgnoresFartherCandidate(t *testing.T) {
	n, sp := newTestNode(t)

	close := &domain.Node{ID: sp.FromUint64(3), Addr: "close:1"}
	n.Notify(close)

	farther := &domain.Node{ID: sp.FromUint64(250), Addr: "far:1"}
	n.Notify(farther)

	if pred := n.RoutingTable().GetPredecessor(); !pred.Equal(close) {
		t.Errorf("expected predecessor to remain %v, got %v", close, pred)
	}
}

func TestLeaveOnLoneRingIsNoop(t *testing.T) {
	n, _ := newTestNode(t)
	if err := n.Leave(context.Background()); err != nil {
		t.Fatalf("Leave on a single-node ring should be a no-op, got %v", err)
	}
}

func TestHandleUpdateSuccessorRejectsSelf(t *testing.T) {
	n, _ := newTestNode(t)
	if err := n.HandleUpdateSuccessor(n.Self()); err != ErrSelfNaming {
		t.Fatalf("expected ErrSelfNaming, got %v", err)
	}
}

func TestHandleUpdatePredecessorRejectsSelf(t *testing.T) {
	n, _ := newTestNode(t)
	if err := n.HandleUpdatePredecessor(n.Self()); err != ErrSelfNaming {
		t.Fatalf("expected ErrSelfNaming, got %v", err)
	}
}

func TestHandleUpdateSuccessorAcceptsDistinctNode(t *testing.T) {
	n, sp := newTestNode(t)
	other := &domain.Node{ID: sp.FromUint64(99), Addr: "other:1"}
	if err := n.HandleUpdateSuccessor(other); err != nil {
		t.Fatalf("HandleUpdateSuccessor: %v", err)
	}
	if succ := n.RoutingTable().FirstSuccessor(); !succ.Equal(other) {
		t.Errorf("expected successor updated to %v, got %v", other, succ)
	}
}

func TestHandleUpdatePredecessorAcceptsDistinctNode(t *testing.T) {
	n, sp := newTestNode(t)
	other := &domain.Node{ID: sp.FromUint64(3), Addr: "other:1"}
	if err := n.HandleUpdatePredecessor(other); err != nil {
		t.Fatalf("HandleUpdatePredecessor: %v", err)
	}
	if pred := n.RoutingTable().GetPredecessor(); !pred.Equal(other) {
		t.Errorf("expected predecessor updated to %v, got %v", other, pred)
	}
}

func TestHandleFindSuccessorAnswersLocally(t *testing.T) {
	n, sp := newTestNode(t)
	target := sp.FromUint64(77)

	owner, done, err := n.HandleFindSuccessor(target)
	if err != nil {
		t.Fatalf("HandleFindSuccessor: %v", err)
	}
	if !done {
		t.Fatalf("expected HandleFindSuccessor to resolve directly on a single-node ring")
	}
	if !owner.Equal(n.Self()) {
		t.Errorf("expected owner to be self, got %v", owner)
	}
}
