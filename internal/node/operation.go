package node

import (
	"chordkv/internal/ctxutil"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"chordkv/internal/transport"
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxLookupHops = 64

// ErrSelfNaming is returned by HandleUpdateSuccessor/HandleUpdatePredecessor
// when the requested pointer would name this node itself, an invariant
// violation the caller must never induce.
var ErrSelfNaming = errors.New("node: refusing to name self as successor/predecessor")

// Space returns the identifier space of the ring.
func (n *Node) Space() domain.Space {
	return n.rt.Space()
}

// FindSuccessor resolves the node responsible for target, starting the
// search at this node. It first checks whether the answer is already
// known locally (target falls in (self, successor]); otherwise it
// walks the finger table toward the closest preceding node it knows of
// and continues the search remotely, hop by hop, until an owner is
// found or maxLookupHops is exceeded (guards against a corrupted ring
// looping forever).
func (n *Node) FindSuccessor(ctx context.Context, target domain.ID) (*domain.Node, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	self := n.rt.Self()
	succ := n.rt.FirstSuccessor()
	if succ == nil {
		return nil, status.Error(codes.Internal, "node not initialized: no successor")
	}
	if target.Between(self.ID, succ.ID) {
		return succ, nil
	}

	next := n.rt.ClosestPrecedingFinger(target)
	if next.Equal(self) {
		// nothing closer known than ourselves; hand off to the
		// immediate successor as a last resort.
		next = succ
	}

	hops := 0
	for {
		hops++
		if hops > maxLookupHops {
			return nil, fmt.Errorf("node: FindSuccessor exceeded %d hops for target %s", maxLookupHops, target.String())
		}
		if next.Equal(self) {
			return self, nil
		}
		node, done, err := n.cp.FindSuccessor(ctx, target, next.Addr)
		if err != nil {
			n.lgr.Warn("FindSuccessor: remote hop failed, falling back to current successor",
				logger.F("addr", next.Addr), logger.F("error", err.Error()))
			if succ != nil {
				return succ, nil
			}
			return self, nil
		}
		if done {
			return node, nil
		}
		next = node
	}
}

// HandleFindSuccessor answers a remote FIND_SUCCESSOR request for this
// node's local state: it resolves one hop of the lookup rather than the
// whole chain, letting the caller (an asking node, or FindSuccessor
// above acting on its behalf) continue the walk itself.
func (n *Node) HandleFindSuccessor(target domain.ID) (node *domain.Node, done bool, err error) {
	self := n.rt.Self()
	succ := n.rt.FirstSuccessor()
	if succ == nil {
		return nil, false, status.Error(codes.Internal, "node not initialized: no successor")
	}
	if target.Between(self.ID, succ.ID) {
		return succ, true, nil
	}
	next := n.rt.ClosestPrecedingFinger(target)
	if next.Equal(self) {
		next = succ
	}
	return next, false, nil
}

// Notify is called when other believes it might be this node's
// predecessor. Per the stabilization protocol, self's predecessor is
// updated only if it is currently unset or other is a closer
// predecessor than the one currently known.
func (n *Node) Notify(other *domain.Node) {
	if other == nil {
		return
	}
	self := n.rt.Self()
	n.rt.AddNeighbor(other)
	pred := n.rt.GetPredecessor()
	if pred == nil || other.ID.Between(pred.ID, self.ID) {
		n.rt.SetPredecessor(other)
		n.predMu.Lock()
		n.missedHeartbeats = 0
		n.predMu.Unlock()
		n.lgr.Info("Notify: predecessor updated", logger.FNode("predecessor", other))
	}
}

// CreateRing initializes a brand-new, single-node ring with this node
// as its only member.
func (n *Node) CreateRing() {
	n.rt.InitSingleNode()
	n.lgr.Info("CreateRing: ring initialized", logger.FNode("self", n.rt.Self()))
}

// Join contacts an existing ring member at addr and adopts the
// successor it reports as this node's own, becoming part of the ring.
// Stabilization fills in the remaining routing state afterward.
func (n *Node) Join(ctx context.Context, addr string) error {
	self := n.rt.Self()
	succ, err := n.cp.JoinRequest(ctx, self, addr)
	if err != nil {
		return fmt.Errorf("node: join via %s failed: %w", addr, err)
	}
	if succ == nil {
		return fmt.Errorf("node: join via %s returned no successor", addr)
	}
	n.rt.SetSuccessor(0, succ)
	n.rt.AddNeighbor(succ)
	n.lgr.Info("Join: joined ring", logger.FNode("successor", succ))
	return nil
}

// HandleJoinRequest answers a remote node's request to join the ring
// by resolving its successor, exactly like any other FindSuccessor
// call would.
func (n *Node) HandleJoinRequest(ctx context.Context, joiningID domain.ID) (*domain.Node, error) {
	return n.FindSuccessor(ctx, joiningID)
}

// HandleUpdateSuccessor answers a remote UPDATE_SUCCESSOR request,
// used to bridge the ring across a gracefully leaving node: the
// leaver's predecessor is told to point its successor at the leaver's
// old successor instead. A request naming this node itself is
// rejected rather than applied, since that would wedge the ring.
func (n *Node) HandleUpdateSuccessor(node *domain.Node) error {
	if node.Equal(n.rt.Self()) {
		return ErrSelfNaming
	}
	n.rt.SetSuccessor(0, node)
	n.rt.AddNeighbor(node)
	n.rt.SetFinger(0, node)
	return nil
}

// HandleUpdatePredecessor answers a remote UPDATE_PREDECESSOR request,
// the mirror of HandleUpdateSuccessor sent to the leaver's old
// successor so it adopts the leaver's predecessor directly instead of
// waiting for stabilization to discover it.
func (n *Node) HandleUpdatePredecessor(node *domain.Node) error {
	if node.Equal(n.rt.Self()) {
		return ErrSelfNaming
	}
	n.rt.SetPredecessor(node)
	n.rt.AddNeighbor(node)
	return nil
}

// replicaTargets returns the distinct live nodes, beyond self, that
// should hold a replica of a key owned by self: the successor chain is
// walked live (not from a cached successor list snapshot) until
// replicationFactor-1 distinct nodes are collected or the chain loops
// back to self. Walking live means a recently failed successor is
// simply skipped rather than poisoning the replica set.
func (n *Node) replicaTargets(ctx context.Context) []*domain.Node {
	self := n.rt.Self()
	targets := make([]*domain.Node, 0, n.replicationFactor-1)
	seen := map[string]bool{self.ID.String(): true}

	cursor := n.rt.FirstSuccessor()
	for i := 0; cursor != nil && len(targets) < n.replicationFactor-1 && i < n.rt.SuccListSize()*2; i++ {
		if seen[cursor.ID.String()] {
			break
		}
		seen[cursor.ID.String()] = true
		if cursor.Equal(self) {
			break
		}
		next, err := n.cp.GetSuccessorList(ctx, cursor.Addr)
		if err != nil {
			// an unreachable node is not taken as a replica target
			break
		}
		targets = append(targets, cursor)
		if len(next) == 0 {
			break
		}
		cursor = next[0]
	}
	return targets
}

// Put stores a resource locally (this node must be the key's primary
// owner) and asynchronously pushes replicas to the next
// replicationFactor-1 live successors.
func (n *Node) Put(ctx context.Context, id domain.ID, rawKey, value string) error {
	res := domain.Resource{Key: id, RawKey: rawKey, Value: value, Timestamp: time.Now()}
	n.store.Put(res)

	for _, target := range n.replicaTargets(ctx) {
		go func(addr string) {
			replicaCtx, cancel := context.WithTimeout(context.Background(), n.requestTimeout)
			defer cancel()
			if err := n.cp.Replicate(replicaCtx, res, addr); err != nil {
				n.lgr.Warn("Put: replication failed", logger.F("addr", addr), logger.F("error", err.Error()))
			}
		}(target.Addr)
	}
	return nil
}

// HandleReplicate applies an incoming replica push from the key's
// primary owner.
func (n *Node) HandleReplicate(res domain.Resource) {
	res.IsReplica = true
	n.store.Put(res)
}

// HandlePut applies a PUT forwarded to this node because it is
// (believed to be) responsible for the key.
func (n *Node) HandlePut(ctx context.Context, res domain.Resource) error {
	return n.Put(ctx, res.Key, res.RawKey, res.Value)
}

// Get resolves a value for id. If this node is not the key's primary
// owner, the request is forwarded asynchronously and the call blocks
// on a pending-request slot until the RESULT envelope arrives or
// requestTimeout elapses.
func (n *Node) Get(ctx context.Context, id domain.ID) (domain.Resource, error) {
	if res, err := n.store.Get(id); err == nil {
		return res, nil
	}

	owner, err := n.FindSuccessor(ctx, id)
	if err != nil {
		return domain.Resource{}, err
	}
	if owner.Equal(n.rt.Self()) {
		return domain.Resource{}, domain.ErrResourceNotFound
	}

	requestID := fmt.Sprintf("%s-%d", id.String(), time.Now().UnixNano())
	waitCh := n.pending.Register(requestID, n.requestTimeout)
	defer n.pending.Forget(requestID)

	if err := n.cp.GetAsync(ctx, id, n.rt.Self(), requestID, owner.Addr); err != nil {
		return domain.Resource{}, err
	}

	select {
	case env, ok := <-waitCh:
		if !ok {
			return domain.Resource{}, status.Error(codes.DeadlineExceeded, "get: request expired before a result arrived")
		}
		if env.Error != "" {
			return domain.Resource{}, domain.ErrResourceNotFound
		}
		return resourceFromEnvelopeData(env.Data), nil
	case <-ctx.Done():
		return domain.Resource{}, ctx.Err()
	case <-time.After(n.requestTimeout):
		return domain.Resource{}, status.Error(codes.DeadlineExceeded, "get: timed out waiting for result")
	}
}

// HandleResult delivers an inbound RESULT envelope to whichever local
// Get call is waiting on its request ID.
func (n *Node) HandleResult(env *transport.Envelope) {
	n.pending.Resolve(env)
}

// Delete removes a key, forwarding to its owner if necessary, and
// fans out delete notifications to replica holders.
func (n *Node) Delete(ctx context.Context, id domain.ID) error {
	owner, err := n.FindSuccessor(ctx, id)
	if err != nil {
		return err
	}
	if !owner.Equal(n.rt.Self()) {
		return n.cp.Delete(ctx, id, owner.Addr)
	}
	if err := n.store.Delete(id); err != nil {
		return err
	}
	for _, target := range n.replicaTargets(ctx) {
		go func(addr string) {
			delCtx, cancel := context.WithTimeout(context.Background(), n.requestTimeout)
			defer cancel()
			_ = n.cp.Delete(delCtx, id, addr)
		}(target.Addr)
	}
	return nil
}

// HandleDelete applies a DELETE forwarded to this node.
func (n *Node) HandleDelete(id domain.ID) error {
	return n.store.Delete(id)
}

// Leave gracefully removes this node from the ring: it hands off every
// key it owns to its successor, then stitches the ring directly by
// telling its predecessor to adopt its successor and its successor to
// adopt its predecessor, rather than leaving the two to discover each
// other through stabilization alone.
func (n *Node) Leave(ctx context.Context) error {
	succ := n.rt.FirstSuccessor()
	if succ == nil || succ.Equal(n.rt.Self()) {
		return nil
	}
	pred := n.rt.GetPredecessor()

	for _, res := range n.store.All() {
		if res.IsReplica {
			continue
		}
		if err := n.cp.Put(ctx, res, succ.Addr); err != nil {
			n.lgr.Warn("Leave: failed to hand off key", logger.F("key", res.Key.String()), logger.F("error", err.Error()))
		}
	}
	n.lgr.Info("Leave: key hand-off complete", logger.FNode("successor", succ))

	if pred != nil && !pred.Equal(n.rt.Self()) {
		if err := n.cp.UpdateSuccessor(ctx, succ, pred.Addr); err != nil {
			n.lgr.Warn("Leave: failed to bridge predecessor to successor", logger.F("error", err.Error()))
		}
		if err := n.cp.UpdatePredecessor(ctx, pred, succ.Addr); err != nil {
			n.lgr.Warn("Leave: failed to bridge successor to predecessor", logger.F("error", err.Error()))
		}
	}
	n.lgr.Info("Leave: ring stitched", logger.FNode("predecessor", pred), logger.FNode("successor", succ))
	return nil
}
