package routingtable

import (
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"fmt"
	"sync"
)

// routingEntry represents a single entry in the routing table.
//
// Each entry holds a reference to a domain.Node and provides
// thread-safe access through a read/write mutex. The type is
// defined as a struct to allow future extensions (e.g., storing
// metadata, timestamps, or health information about the node).
type routingEntry struct {
	// node is the domain-level node stored in this entry.
	// It can be read and updated concurrently using mu.
	node *domain.Node

	// mu synchronizes access to node, ensuring safe
	// concurrent reads and writes.
	mu sync.RWMutex
}

// RoutingTable represents the routing state of a node in the Chord ring.
//
// A routing table combines the ring successor/predecessor links with a
// finger table of O(log n) shortcut pointers, enabling logarithmic
// lookups while the successor list gives fault tolerance against node
// failures. It is owned by a single node (self) and maintained through
// the stabilization protocol.
type RoutingTable struct {
	logger        logger.Logger   // logger for routing table operations
	space         domain.Space    // identifier space and finger table size
	self          *domain.Node    // the local node owning this routing table
	successorList []*routingEntry // O(log n) (set by configuration) successors for fault tolerance
	succListSize  int             // configured size of the successor list
	predecessor   *routingEntry   // immediate predecessor in the ring
	fingers       []*routingEntry // finger table entries, index 0 == first successor

	joinedMu sync.RWMutex
	joined   bool // true once the node has a live successor, i.e. is part of a ring

	neighborsMu sync.RWMutex
	neighbors   map[string]*domain.Node // id -> (ip,port), opportunistic last-resort recovery cache

	maintenanceMu     sync.RWMutex
	maintenancePaused bool // testing hook: background loops skip one cycle while true
}

// New creates and initializes a new RoutingTable for the given node.
//
// The routing table is initialized with empty successor entries, an empty
// predecessor entry, and a finger table of size space.FingerCount. By
// default, logging is disabled (NopLogger) unless overridden with options.
func New(self *domain.Node, space domain.Space, succListSize int, opts ...Option) *RoutingTable {
	rt := &RoutingTable{
		self:          self,
		space:         space,
		successorList: make([]*routingEntry, succListSize), // successors initially nil
		succListSize:  succListSize,                        // configured size of the successor list
		predecessor:   &routingEntry{},                      // predecessor initially nil
		fingers:       make([]*routingEntry, space.FingerCount),
		neighbors:     make(map[string]*domain.Node),
		logger:        &logger.NopLogger{}, // default: no logging
	}
	// Initialize successor list entries with empty routingEntry structs.
	for i := range rt.successorList {
		rt.successorList[i] = &routingEntry{}
	}
	// Initialize finger entries with empty routingEntry structs.
	for i := range rt.fingers {
		rt.fingers[i] = &routingEntry{}
	}
	// Apply functional options (custom logger).
	for _, opt := range opts {
		opt(rt)
	}
	// Log the creation of the routing table.
	rt.logger.Debug("routing table initialized")
	return rt
}

// InitSingleNode configures the routing table to represent a single-node
// ring. The successor list and every finger point to the local node
// itself; the predecessor is left unset, matching a freshly created
// ring that has never been notified by anyone else. Used when
// bootstrapping a fresh ring with only one participating node.
func (rt *RoutingTable) InitSingleNode() {
	rt.successorList[0] = &routingEntry{node: rt.self}
	rt.predecessor = &routingEntry{}
	for i := range rt.fingers {
		rt.fingers[i] = &routingEntry{node: rt.self}
	}
	rt.SetJoined(true)
	rt.logger.Debug("Routing table set to single-node ring")
}

// Space return the space configuration of the Chord ring.
func (rt *RoutingTable) Space() domain.Space {
	return rt.space
}

// Self returns the local node owning this routing table.
func (rt *RoutingTable) Self() *domain.Node {
	return rt.self
}

// SuccListSize returns the configured size of the successor list.
func (rt *RoutingTable) SuccListSize() int {
	return rt.succListSize
}

// IsJoined reports whether this node currently believes itself part of
// a ring (has a live successor). Stabilization and client-facing
// operations should refuse to proceed while this is false.
func (rt *RoutingTable) IsJoined() bool {
	rt.joinedMu.RLock()
	defer rt.joinedMu.RUnlock()
	return rt.joined
}

// SetJoined updates the joined flag.
func (rt *RoutingTable) SetJoined(v bool) {
	rt.joinedMu.Lock()
	rt.joined = v
	rt.joinedMu.Unlock()
}

// GetSuccessor returns the i-th successor from the successor list.
//
// If the index is out of range or the entry does not contain a node,
// the method returns nil. Access is synchronized using a read lock
// to ensure thread-safe concurrent access.
func (rt *RoutingTable) GetSuccessor(i int) *domain.Node {
	if i < 0 || i >= len(rt.successorList) {
		rt.logger.Warn(
			"GetSuccessor: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.successorList)-1)),
		)
		return nil
	}
	entry := rt.successorList[i]
	entry.mu.RLock()
	node := entry.node
	entry.mu.RUnlock()
	rt.logger.Debug("GetSuccessor: returning successor", logger.F("index", i), logger.FNode("successor", node))
	return node
}

// FirstSuccessor return the first successor in the successor list.
// It is a convenience method equivalent to GetSuccessor(0).
// If the successor list is empty or the first entry is nil, it returns nil.
func (rt *RoutingTable) FirstSuccessor() *domain.Node {
	return rt.GetSuccessor(0)
}

// SetSuccessor updates the i-th successor entry with the specified node.
//
// If the index is out of range, the method logs a warning and does nothing.
// The update is synchronized with a write lock to ensure thread-safe
// concurrent modifications.
func (rt *RoutingTable) SetSuccessor(i int, node *domain.Node) {
	if i < 0 || i >= len(rt.successorList) {
		rt.logger.Warn(
			"SetSuccessor: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.successorList)-1)),
		)
		return
	}
	entry := rt.successorList[i]
	entry.mu.Lock()
	entry.node = node
	entry.mu.Unlock()
	if i == 0 {
		rt.SetJoined(node != nil)
	}
	rt.logger.Debug("SetSuccessor: updated successor", logger.F("index", i), logger.FNode("successor", node))
}

// SuccessorList returns a slice of all non-nil successors currently known
// in the routing table.
//
// Each successor entry is read under a read lock to ensure thread-safe access.
// The returned slice contains only initialized successors; entries with a nil
// node are skipped. Callers receive a shallow copy of the successor list and
// may safely modify it without affecting the internal state.
func (rt *RoutingTable) SuccessorList() []*domain.Node {
	out := make([]*domain.Node, 0, len(rt.successorList))
	snapshot := make([]*domain.Node, 0, len(rt.successorList))
	// lock phase: take a snapshot of the successor list
	for _, entry := range rt.successorList {
		entry.mu.RLock()
		node := entry.node
		entry.mu.RUnlock()

		snapshot = append(snapshot, node)
		if node != nil {
			out = append(out, node)
		}
	}
	// debug logging phase: log the full snapshot including nils
	nodesInfo := make([]map[string]any, 0, len(snapshot))
	for i, n := range snapshot {
		if n == nil {
			nodesInfo = append(nodesInfo, map[string]any{
				"index": i,
				"node":  nil,
			})
		} else {
			nodesInfo = append(nodesInfo, map[string]any{
				"index": i,
				"id":    n.ID.String(),
				"addr":  n.Addr,
			})
		}
	}
	rt.logger.Debug("SuccessorList snapshot", logger.F("entries", nodesInfo))
	return out
}

// SetSuccessorList replaces the entire successor list with the given slice.
//
// The provided slice must have the same length as the internal successor list.
// Each entry is updated under a write lock to ensure thread safety.
// If the slice length does not match, the method logs a warning and does nothing.
func (rt *RoutingTable) SetSuccessorList(nodes []*domain.Node) {
	if len(nodes) != len(rt.successorList) {
		rt.logger.Warn(
			"SetSuccessorList: length mismatch",
			logger.F("expected", len(rt.successorList)),
			logger.F("got", len(nodes)),
		)
		return
	}
	for i, node := range nodes {
		rt.SetSuccessor(i, node)
	}
	// log
	entriesInfo := make([]map[string]any, 0, len(nodes))
	for i, node := range nodes {
		if node == nil {
			entriesInfo = append(entriesInfo, map[string]any{
				"index": i,
				"node":  nil,
			})
		} else {
			entriesInfo = append(entriesInfo, map[string]any{
				"index": i,
				"id":    node.ID.String(),
				"addr":  node.Addr,
			})
		}
	}
	rt.logger.Debug("SetSuccessorList: successor list updated",
		logger.F("entries", entriesInfo),
	)
}

// PromoteCandidate restructures the successor list by promoting the
// successor at position i to the head of the list.
//
// Behavior:
//   - The node at index i becomes the new successor at position 0.
//   - All successors after position i are shifted forward,
//     preserving their relative order.
//   - All successors before position i are discarded.
//   - The list is padded with nil entries until it reaches
//     the configured successor list size.
//
// Parameters:
//   - i: the index of the candidate successor to promote.
//     If i <= 0 or out of range, the function does nothing.
func (rt *RoutingTable) PromoteCandidate(i int) {
	if i <= 0 || i >= rt.succListSize {
		rt.logger.Warn(
			"PromoteCandidate: invalid index",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[1..%d]", rt.succListSize-1)),
		)
		return
	}
	candidate := rt.GetSuccessor(i)
	if candidate == nil {
		rt.logger.Warn(
			"PromoteCandidate: candidate is nil",
			logger.F("index", i),
		)
		return
	}
	// Build a new list: candidate + all successors after it
	newList := make([]*domain.Node, 0, rt.succListSize)
	newList = append(newList, candidate)
	for j := i + 1; j < rt.succListSize; j++ {
		if succ := rt.GetSuccessor(j); succ != nil {
			newList = append(newList, succ)
		}
	}
	// Pad the list with nil to reach the configured size
	for len(newList) < rt.succListSize {
		newList = append(newList, nil)
	}
	rt.SetSuccessorList(newList)
	// Log the promotion
	rt.logger.Debug(
		"PromoteCandidate: successor promoted",
		logger.F("from_index", i),
		logger.FNode("candidate", candidate),
	)
}

// GetPredecessor return the current predecessor node.
// If the predecessor is not set, it returns nil.
// Access is synchronized with a read lock for thread safety.
func (rt *RoutingTable) GetPredecessor() *domain.Node {
	rt.predecessor.mu.RLock()
	node := rt.predecessor.node
	rt.predecessor.mu.RUnlock()
	rt.logger.Debug(
		"GetPredecessor: predecessor retrieved",
		logger.FNode("predecessor", node),
	)
	return node
}

// SetPredecessor updates the predecessor pointer to the specified node.
// Access is synchronized with a write lock to ensure thread-safe updates.
func (rt *RoutingTable) SetPredecessor(node *domain.Node) {
	rt.predecessor.mu.Lock()
	rt.predecessor.node = node
	rt.predecessor.mu.Unlock()
	rt.logger.Debug(
		"SetPredecessor: predecessor updated",
		logger.FNode("predecessor", node),
	)
}

// GetFinger returns the node pointer stored in the finger table entry
// at index i (0-based, so GetFinger(0) is the finger starting at
// self+2^0).
//
// If i is out of range, the method returns nil. Access is synchronized
// with a read lock to ensure thread-safe concurrent access.
func (rt *RoutingTable) GetFinger(i int) *domain.Node {
	if i < 0 || i >= len(rt.fingers) {
		rt.logger.Warn(
			"GetFinger: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.fingers)-1)),
		)
		return nil
	}
	entry := rt.fingers[i]
	entry.mu.RLock()
	node := entry.node
	entry.mu.RUnlock()
	rt.logger.Debug(
		"GetFinger: node retrieved",
		logger.F("index", i),
		logger.FNode("node", node),
	)
	return node
}

// SetFinger updates the finger table entry at index i with the
// specified node.
//
// If i is out of range, the method logs a warning and does nothing.
// The update is synchronized with a write lock to ensure thread-safe
// concurrent modifications.
func (rt *RoutingTable) SetFinger(i int, node *domain.Node) {
	if i < 0 || i >= len(rt.fingers) {
		rt.logger.Warn(
			"SetFinger: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.fingers)-1)),
		)
		return
	}
	entry := rt.fingers[i]
	entry.mu.Lock()
	entry.node = node
	entry.mu.Unlock()
	rt.logger.Debug(
		"SetFinger: entry updated",
		logger.F("index", i),
		logger.FNode("node", node),
	)
}

// FingerList returns a slice of all non-nil finger table entries
// currently known in the routing table.
//
// Each entry is read under a read lock to ensure thread-safe access.
// The returned slice contains only initialized finger pointers; entries
// with a nil node are skipped. Callers receive a shallow copy of the
// data and may safely modify it without affecting the internal state.
func (rt *RoutingTable) FingerList() []*domain.Node {
	out := make([]*domain.Node, 0, len(rt.fingers))
	snapshot := make([]*domain.Node, 0, len(rt.fingers))
	for _, entry := range rt.fingers {
		entry.mu.RLock()
		node := entry.node
		entry.mu.RUnlock()

		snapshot = append(snapshot, node)
		if node != nil {
			out = append(out, node)
		}
	}
	nodesInfo := make([]map[string]any, 0, len(snapshot))
	for i, n := range snapshot {
		if n == nil {
			nodesInfo = append(nodesInfo, map[string]any{
				"index": i,
				"node":  nil,
			})
		} else {
			nodesInfo = append(nodesInfo, map[string]any{
				"index": i,
				"id":    n.ID.String(),
				"addr":  n.Addr,
			})
		}
	}
	rt.logger.Debug("FingerList snapshot", logger.F("entries", nodesInfo))
	return out
}

// ClosestPrecedingFinger scans the finger table from the farthest reach
// (highest index) down to the nearest, returning the first finger whose
// node falls strictly between self and id on the ring. Falls back to
// self when no finger qualifies, which tells the caller the lookup has
// reached its local neighborhood and should hand off to the successor
// directly.
func (rt *RoutingTable) ClosestPrecedingFinger(id domain.ID) *domain.Node {
	for i := len(rt.fingers) - 1; i >= 0; i-- {
		entry := rt.fingers[i]
		entry.mu.RLock()
		node := entry.node
		entry.mu.RUnlock()
		if node == nil {
			continue
		}
		if node.ID.Between(rt.self.ID, id) && !node.ID.Equal(id) {
			rt.logger.Debug("ClosestPrecedingFinger: found candidate",
				logger.F("index", i), logger.FNode("node", node))
			return node
		}
	}
	rt.logger.Debug("ClosestPrecedingFinger: no finger qualifies, returning self")
	return rt.self
}

// AddNeighbor opportunistically caches a node this routing table has
// learned of during stabilization, joins, or notifications. The cache
// is consulted only as a last resort, when both the successor and
// predecessor are unavailable and the ring needs any live peer to
// re-anchor itself to.
func (rt *RoutingTable) AddNeighbor(node *domain.Node) {
	if node == nil || node.Equal(rt.self) {
		return
	}
	rt.neighborsMu.Lock()
	rt.neighbors[node.ID.String()] = node
	rt.neighborsMu.Unlock()
}

// RemoveNeighbor evicts id from the neighbors cache, e.g. once the
// node behind it has been confirmed dead.
func (rt *RoutingTable) RemoveNeighbor(id domain.ID) {
	rt.neighborsMu.Lock()
	delete(rt.neighbors, id.String())
	rt.neighborsMu.Unlock()
}

// AnyNeighbor returns an arbitrary cached neighbor, or nil if the cache
// is empty. Map iteration order is randomized by Go itself, which is
// sufficient: callers just need some live peer to recover through, not
// a specific one.
func (rt *RoutingTable) AnyNeighbor() *domain.Node {
	rt.neighborsMu.RLock()
	defer rt.neighborsMu.RUnlock()
	for _, node := range rt.neighbors {
		return node
	}
	return nil
}

// MaintenancePaused reports whether background maintenance loops
// should skip their current cycle. A testing hook only; it has no
// effect on client-facing operations.
func (rt *RoutingTable) MaintenancePaused() bool {
	rt.maintenanceMu.RLock()
	defer rt.maintenanceMu.RUnlock()
	return rt.maintenancePaused
}

// SetMaintenancePaused toggles the maintenance-paused flag.
func (rt *RoutingTable) SetMaintenancePaused(v bool) {
	rt.maintenanceMu.Lock()
	rt.maintenancePaused = v
	rt.maintenanceMu.Unlock()
}

// DebugLog emits a structured DEBUG-level log entry containing a snapshot
// of the entire routing table.
//
// Unlike calling the public getters (GetSuccessor, GetPredecessor, GetFinger),
// this method accesses the internal entries directly under read locks, in order
// to avoid triggering additional per-entry debug logs. As a result, DebugLog
// produces a single compact log entry that reflects the current state without
// side effects.
//
// This method is intended for debugging and monitoring purposes.
// It does not modify the routing table and can be safely invoked
// concurrently with other operations.
func (rt *RoutingTable) DebugLog() {
	// self
	self := rt.self

	// predecessor
	rt.predecessor.mu.RLock()
	pred := rt.predecessor.node
	rt.predecessor.mu.RUnlock()

	// successors snapshot
	successors := make([]map[string]any, 0, len(rt.successorList))
	for i, entry := range rt.successorList {
		entry.mu.RLock()
		node := entry.node
		entry.mu.RUnlock()
		if node == nil {
			successors = append(successors, map[string]any{"index": i, "node": nil})
		} else {
			successors = append(successors, map[string]any{"index": i, "id": node.ID.String(), "addr": node.Addr})
		}
	}

	// finger table snapshot
	fingers := make([]map[string]any, 0, len(rt.fingers))
	for i, entry := range rt.fingers {
		entry.mu.RLock()
		node := entry.node
		entry.mu.RUnlock()
		if node == nil {
			fingers = append(fingers, map[string]any{"index": i, "node": nil})
		} else {
			fingers = append(fingers, map[string]any{"index": i, "id": node.ID.String(), "addr": node.Addr})
		}
	}

	rt.logger.Debug("RoutingTable snapshot",
		logger.FNode("self", self),
		logger.FNode("predecessor", pred),
		logger.F("successors", successors),
		logger.F("fingers", fingers),
	)
}
