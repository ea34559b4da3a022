package node

import (
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"context"
	"math/rand"
	"time"
)

// StartStabilizers launches the background maintenance loops that keep
// the ring consistent as nodes join, leave, and fail:
//   - stabilize: fixes the immediate successor/predecessor link
//   - fixFingers: refreshes one finger table entry per tick
//   - checkPredecessor: pings the predecessor, clearing it after
//     maxMissed consecutive failures rather than on the first one, so a
//     single dropped heartbeat doesn't needlessly orphan a key range
//   - storage maintenance: repairs under-replicated keys and sweeps
//     expired pending GET requests
//
// All loops stop when ctx is canceled or Stop is called.
func (n *Node) StartStabilizers(ctx context.Context, stabilizeInterval, fixFingerInterval, checkPredecessorInterval, storageInterval time.Duration) {
	go n.loop(ctx, stabilizeInterval, func() {
		n.stabilize(ctx)
	})
	go n.loop(ctx, fixFingerInterval, func() {
		n.fixFingers(ctx)
	})
	go n.loop(ctx, checkPredecessorInterval, func() {
		n.checkPredecessor(ctx)
	})
	go n.loop(ctx, storageInterval, func() {
		n.resourceRepair(ctx)
		n.pending.Sweep()
	})
}

func (n *Node) loop(ctx context.Context, interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			if n.rt.MaintenancePaused() {
				continue
			}
			tick()
		}
	}
}

// stabilize runs the four-step stabilization protocol:
//  1. if the successor is missing, recover it from the predecessor,
//     else from the neighbors cache, else idle this cycle;
//  2. if the successor is still self but a distinct predecessor has
//     since been notified in, adopt it as the new successor (this is
//     how a lone ring picks up the first node that joins it);
//  3. ask the successor for its own predecessor and adopt it if it is
//     a closer fit (lies strictly between self and the successor);
//  4. notify the successor of self's existence so it can update its
//     own predecessor pointer.
func (n *Node) stabilize(ctx context.Context) {
	self := n.rt.Self()
	succ := n.rt.FirstSuccessor()

	if succ == nil {
		succ = n.recoverSuccessor()
		if succ == nil {
			return
		}
	}

	if succ.Equal(self) {
		pred := n.rt.GetPredecessor()
		if pred == nil || pred.Equal(self) {
			return
		}
		n.rt.SetSuccessor(0, pred)
		succ = pred
	}

	n.rt.AddNeighbor(succ)

	x, err := n.cp.GetPredecessor(ctx, succ.Addr)
	if err == nil && x != nil && x.ID.Between(self.ID, succ.ID) && !x.Equal(self) {
		n.rt.SetSuccessor(0, x)
		succ = x
		n.rt.AddNeighbor(x)
	}

	if err := n.cp.Notify(ctx, self, succ.Addr); err != nil {
		n.lgr.Warn("stabilize: notify failed", logger.F("addr", succ.Addr), logger.F("error", err.Error()))
		n.promoteNextSuccessor()
		return
	}

	n.refreshSuccessorList(ctx, succ)
}

// recoverSuccessor implements stabilize step 1's fallback chain when
// the successor pointer has gone missing entirely: fall back to the
// predecessor, then to any cached neighbor, returning nil if neither
// is available so the caller idles this cycle.
func (n *Node) recoverSuccessor() *domain.Node {
	self := n.rt.Self()
	if pred := n.rt.GetPredecessor(); pred != nil && !pred.Equal(self) {
		n.rt.SetSuccessor(0, pred)
		return pred
	}
	if cand := n.rt.AnyNeighbor(); cand != nil {
		n.rt.SetSuccessor(0, cand)
		n.lgr.Warn("recoverSuccessor: recovered successor from neighbors cache", logger.FNode("candidate", cand))
		return cand
	}
	return nil
}

// refreshSuccessorList pulls succ's own successor list and uses it to
// repopulate this node's list (shifted by one), keeping successorList
// populated with live O(log n) fallbacks.
func (n *Node) refreshSuccessorList(ctx context.Context, succ *domain.Node) {
	remote, err := n.cp.GetSuccessorList(ctx, succ.Addr)
	if err != nil {
		return
	}
	size := n.rt.SuccListSize()
	newList := make([]*domain.Node, size)
	newList[0] = succ
	for i := 1; i < size; i++ {
		if i-1 < len(remote) {
			newList[i] = remote[i-1]
		}
	}
	n.rt.SetSuccessorList(newList)
}

// promoteNextSuccessor is called when the current successor stops
// responding: it advances to the next non-nil entry in the successor
// list (entries are not probed first), or to a node from the neighbors
// cache once the list is exhausted, so the ring doesn't wedge on a
// single dead node.
func (n *Node) promoteNextSuccessor() {
	list := n.rt.SuccessorList()
	for i := 1; i < len(list); i++ {
		if list[i] != nil {
			n.rt.PromoteCandidate(i)
			n.lgr.Warn("promoteNextSuccessor: promoted fallback successor", logger.FNode("candidate", list[i]))
			return
		}
	}
	if cand := n.rt.AnyNeighbor(); cand != nil {
		n.rt.SetSuccessor(0, cand)
		n.lgr.Warn("promoteNextSuccessor: recovered successor from neighbors cache", logger.FNode("candidate", cand))
		return
	}
	n.lgr.Error("promoteNextSuccessor: no live successor candidates remain")
}

// fixFingers refreshes a single, randomly chosen finger table entry
// per call. Picking one entry at a time instead of all of them keeps
// any given tick cheap; over many ticks every entry gets refreshed.
func (n *Node) fixFingers(ctx context.Context) {
	space := n.rt.Space()
	i := rand.Intn(space.FingerCount) + 1
	start, err := space.FingerStart(n.rt.Self().ID, i)
	if err != nil {
		n.lgr.Warn("fixFingers: could not compute finger start", logger.F("index", i), logger.F("error", err.Error()))
		return
	}
	succ, err := n.FindSuccessor(ctx, start)
	if err != nil {
		n.lgr.Debug("fixFingers: lookup failed", logger.F("index", i), logger.F("error", err.Error()))
		return
	}
	n.rt.SetFinger(i-1, succ)
}

// checkPredecessor pings the current predecessor. The predecessor
// pointer is cleared only after maxMissed consecutive failures, so a
// single transient network blip does not needlessly orphan the key
// range between self and the (still alive) predecessor.
func (n *Node) checkPredecessor(ctx context.Context) {
	pred := n.rt.GetPredecessor()
	if pred == nil {
		return
	}
	err := n.cp.Ping(ctx, pred.Addr)

	n.predMu.Lock()
	defer n.predMu.Unlock()
	if err == nil {
		n.missedHeartbeats = 0
		return
	}
	n.missedHeartbeats++
	n.lgr.Warn("checkPredecessor: heartbeat missed",
		logger.FNode("predecessor", pred),
		logger.F("missed", n.missedHeartbeats),
		logger.F("max", n.maxMissed))
	if n.missedHeartbeats >= n.maxMissed {
		n.rt.SetPredecessor(nil)
		n.missedHeartbeats = 0
		n.lgr.Warn("checkPredecessor: predecessor declared dead, cleared", logger.FNode("predecessor", pred))
	}
}

// resourceRepair re-pushes every primary-owned key this node holds to
// its current replica targets. It is the steady-state counterpart to
// the fire-and-forget replication done at Put time: it heals replica
// gaps left by a successor that was down during the original write (or
// that joined afterward and should now be carrying a copy).
func (n *Node) resourceRepair(ctx context.Context) {
	if !n.rt.IsJoined() {
		return
	}
	targets := n.replicaTargets(ctx)
	if len(targets) == 0 {
		return
	}
	for _, res := range n.store.All() {
		if res.IsReplica {
			continue
		}
		for _, target := range targets {
			repairCtx, cancel := context.WithTimeout(ctx, n.requestTimeout)
			err := n.cp.Replicate(repairCtx, res, target.Addr)
			cancel()
			if err != nil {
				n.lgr.Debug("resourceRepair: push failed", logger.F("addr", target.Addr), logger.F("key", res.Key.String()))
			}
		}
	}
}
