package routingtable

import (
	"testing"

	"chordkv/internal/domain"
)

func newTestSpace(t *testing.T) domain.Space {
	t.Helper()
	sp, err := domain.NewSpace(8, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

func nodeAt(sp domain.Space, id uint64) *domain.Node {
	return &domain.Node{ID: sp.FromUint64(id), Addr: "n"}
}

func TestInitSingleNode(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeAt(sp, 10)
	rt := New(self, sp, 3)
	rt.InitSingleNode()

	if !rt.IsJoined() {
		t.Fatalf("expected IsJoined after InitSingleNode")
	}
	if succ := rt.FirstSuccessor(); !succ.Equal(self) {
		t.Errorf("expected successor to be self, got %v", succ)
	}
	if pred := rt.GetPredecessor(); pred != nil {
		t.Errorf("expected predecessor to be unset on a fresh single-node ring, got %v", pred)
	}
	for i := 0; i < sp.FingerCount; i++ {
		if f := rt.GetFinger(i); !f.Equal(self) {
			t.Errorf("expected finger %d to be self, got %v", i, f)
		}
	}
}

func TestClosestPrecedingFinger(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeAt(sp, 10)
	rt := New(self, sp, 3)

	far := nodeAt(sp, 50)
	near := nodeAt(sp, 15)
	rt.SetFinger(5, far)
	rt.SetFinger(1, near)

	got := rt.ClosestPrecedingFinger(sp.FromUint64(60))
	if !got.Equal(far) {
		t.Errorf("expected farthest qualifying finger %v, got %v", far, got)
	}

	got = rt.ClosestPrecedingFinger(sp.FromUint64(20))
	if !got.Equal(near) {
		t.Errorf("expected nearest qualifying finger %v, got %v", near, got)
	}
}

func TestClosestPrecedingFingerFallsBackToSelf(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeAt(sp, 10)
	rt := New(self, sp, 3)

	got := rt.ClosestPrecedingFinger(sp.FromUint64(20))
	if !got.Equal(self) {
		t.Errorf("expected fallback to self, got %v", got)
	}
}

func TestPromoteCandidate(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeAt(sp, 10)
	rt := New(self, sp, 3)

	s0 := nodeAt(sp, 20)
	s1 := nodeAt(sp, 30)
	s2 := nodeAt(sp, 40)
	rt.SetSuccessorList([]*domain.Node{s0, s1, s2})

	rt.PromoteCandidate(1)

	if got := rt.GetSuccessor(0); !got.Equal(s1) {
		t.Errorf("expected promoted successor %v at index 0, got %v", s1, got)
	}
	if got := rt.GetSuccessor(1); !got.Equal(s2) {
		t.Errorf("expected shifted successor %v at index 1, got %v", s2, got)
	}
	if got := rt.GetSuccessor(2); got != nil {
		t.Errorf("expected nil padding at index 2, got %v", got)
	}
}

func TestSetSuccessorUpdatesJoined(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeAt(sp, 10)
	rt := New(self, sp, 3)

	if rt.IsJoined() {
		t.Fatalf("expected not joined before any successor is set")
	}
	rt.SetSuccessor(0, nodeAt(sp, 20))
	if !rt.IsJoined() {
		t.Errorf("expected joined after setting successor 0")
	}
	rt.SetSuccessor(0, nil)
	if rt.IsJoined() {
		t.Errorf("expected not joined after clearing successor 0")
	}
}

func TestNeighborsCacheRecovery(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeAt(sp, 10)
	rt := New(self, sp, 3)

	if got := rt.AnyNeighbor(); got != nil {
		t.Fatalf("expected empty neighbors cache, got %v", got)
	}

	rt.AddNeighbor(self)
	if got := rt.AnyNeighbor(); got != nil {
		t.Errorf("expected self to never be cached as a neighbor, got %v", got)
	}

	n1 := nodeAt(sp, 30)
	rt.AddNeighbor(n1)
	if got := rt.AnyNeighbor(); !got.Equal(n1) {
		t.Errorf("expected cached neighbor %v, got %v", n1, got)
	}

	rt.RemoveNeighbor(n1.ID)
	if got := rt.AnyNeighbor(); got != nil {
		t.Errorf("expected neighbors cache empty after removal, got %v", got)
	}
}

func TestMaintenancePaused(t *testing.T) {
	sp := newTestSpace(t)
	self := nodeAt(sp, 10)
	rt := New(self, sp, 3)

	if rt.MaintenancePaused() {
		t.Fatalf("expected maintenance not paused by default")
	}
	rt.SetMaintenancePaused(true)
	if !rt.MaintenancePaused() {
		t.Errorf("expected maintenance paused after SetMaintenancePaused(true)")
	}
}
