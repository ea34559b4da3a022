// Package node implements the Chord façade binding together the
// routing table, local storage, and outbound client pool into the set
// of operations a running ring member exposes: joining, the
// stabilization protocol, and the client-facing key-value API.
package node

import (
	"sync"
	"time"

	"chordkv/internal/client"
	"chordkv/internal/config"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"chordkv/internal/routingtable"
	"chordkv/internal/storage"
)

// Node is a single participant in the ring.
type Node struct {
	lgr logger.Logger

	rt      *routingtable.RoutingTable
	store   storage.Engine
	pending *storage.PendingRequests
	cp      *client.Pool

	replicationFactor int
	requestTimeout    time.Duration

	missedHeartbeats int
	maxMissed        int
	predMu           sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New assembles a Node from its already-constructed collaborators.
func New(rt *routingtable.RoutingTable, store storage.Engine, cp *client.Pool, cfg config.StorageConfig, faultCfg config.FaultToleranceConfig, opts ...Option) *Node {
	n := &Node{
		lgr:               &logger.NopLogger{},
		rt:                rt,
		store:             store,
		cp:                cp,
		replicationFactor: cfg.ReplicationFactor,
		requestTimeout:    cfg.RequestTimeout,
		maxMissed:         faultCfg.MaxMissedHeartbeats,
		stopCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.pending = storage.NewPendingRequests(n.lgr)
	return n
}

func (n *Node) Self() *domain.Node            { return n.rt.Self() }
func (n *Node) RoutingTable() *routingtable.RoutingTable { return n.rt }
func (n *Node) Store() storage.Engine         { return n.store }

// Stop signals background loops started by StartStabilizers to exit.
func (n *Node) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
}
