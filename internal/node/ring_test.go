package node

import (
	"context"
	"net"
	"testing"
	"time"

	"chordkv/internal/client"
	"chordkv/internal/config"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"chordkv/internal/routingtable"
	"chordkv/internal/server"
	"chordkv/internal/storage"
)

// newRingNode starts a real node behind a loopback gRPC server, the
// same wiring cmd/node/main.go uses, so stabilization and ring-control
// RPCs exercise the actual transport instead of calling Node methods
// directly in-process.
func newRingNode(t *testing.T, sp domain.Space) (n *Node, addr string, stop func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr = lis.Addr().String()
	self := &domain.Node{ID: sp.NewIdFromString(addr), Addr: addr}

	rt := routingtable.New(self, sp, sp.SuccListSize)
	store := storage.NewMemoryStorage(&logger.NopLogger{})
	cp := client.New(&logger.NopLogger{}, time.Second)

	n = New(rt, store, cp, config.StorageConfig{
		ReplicationFactor: 1,
		RequestTimeout:    time.Second,
	}, config.FaultToleranceConfig{
		MaxMissedHeartbeats: 3,
	})

	srv, err := server.New(lis, n, nil)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	go func() { _ = srv.Start() }()

	stop = func() {
		srv.Stop()
		cp.CloseAll()
	}
	return n, addr, stop
}

// TestStabilizeAdoptsJoiningPredecessor reproduces the scenario from
// the review: a lone ring A is joined by B, which notifies A of its
// candidacy. Before stabilize's step 2 existed, A's successor stayed
// pinned to itself forever because its early return never inspected
// the predecessor it had just learned about.
func TestStabilizeAdoptsJoiningPredecessor(t *testing.T) {
	sp, err := domain.NewSpace(32, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	a, addrA, stopA := newRingNode(t, sp)
	defer stopA()
	a.CreateRing()

	b, _, stopB := newRingNode(t, sp)
	defer stopB()

	ctx := context.Background()
	if err := b.Join(ctx, addrA); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if succ := b.RoutingTable().FirstSuccessor(); !succ.Equal(a.Self()) {
		t.Fatalf("expected B's successor to be A after join, got %v", succ)
	}

	b.stabilize(ctx) // B notifies A; A adopts B as predecessor
	a.stabilize(ctx) // A must now adopt B as successor

	if succ := a.RoutingTable().FirstSuccessor(); !succ.Equal(b.Self()) {
		t.Fatalf("expected A's successor to become B, got %v (boundary property: each node's successor is the other)", succ)
	}
	if succ := b.RoutingTable().FirstSuccessor(); !succ.Equal(a.Self()) {
		t.Fatalf("expected B's successor to remain A, got %v", succ)
	}
}

// TestLeaveStitchesRingAcrossRPC builds a 3-node ring A -> B -> C -> A
// directly (bypassing stabilization convergence) and has B leave
// gracefully. B must bridge A and C via UPDATE_SUCCESSOR/
// UPDATE_PREDECESSOR rather than relying on passive stabilization.
func TestLeaveStitchesRingAcrossRPC(t *testing.T) {
	sp, err := domain.NewSpace(32, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	a, _, stopA := newRingNode(t, sp)
	defer stopA()
	b, _, stopB := newRingNode(t, sp)
	defer stopB()
	c, _, stopC := newRingNode(t, sp)
	defer stopC()

	a.RoutingTable().SetSuccessor(0, b.Self())
	a.RoutingTable().SetPredecessor(c.Self())
	b.RoutingTable().SetSuccessor(0, c.Self())
	b.RoutingTable().SetPredecessor(a.Self())
	c.RoutingTable().SetSuccessor(0, a.Self())
	c.RoutingTable().SetPredecessor(b.Self())

	ctx := context.Background()
	if err := b.Leave(ctx); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	if succ := a.RoutingTable().FirstSuccessor(); !succ.Equal(c.Self()) {
		t.Fatalf("expected A's successor to become C after B's leave, got %v", succ)
	}
	if pred := c.RoutingTable().GetPredecessor(); !pred.Equal(a.Self()) {
		t.Fatalf("expected C's predecessor to become A after B's leave, got %v", pred)
	}
}

// TestUpdateSuccessorRejectsSelfNamingOverRPC exercises the same
// rejection as TestHandleUpdateSuccessorRejectsSelf but through the
// real Exchange/dispatch path, confirming the ACK actually carries the
// error flag across the wire rather than being swallowed.
func TestUpdateSuccessorRejectsSelfNamingOverRPC(t *testing.T) {
	sp, err := domain.NewSpace(32, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	a, addrA, stopA := newRingNode(t, sp)
	defer stopA()

	b, _, stopB := newRingNode(t, sp)
	defer stopB()

	ctx := context.Background()
	err = b.cp.UpdateSuccessor(ctx, a.Self(), addrA)
	if err == nil {
		t.Fatalf("expected UpdateSuccessor naming the remote node itself to be rejected")
	}
}
